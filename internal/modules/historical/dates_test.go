package historical

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRange(t *testing.T) {
	defaultStart := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.March, 15, 17, 30, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		from, to, err := DateRange("", "", defaultStart, now)
		require.NoError(t, err)
		assert.Equal(t, defaultStart, from)
		assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), to)
	})

	t.Run("explicit", func(t *testing.T) {
		from, to, err := DateRange("2021-06-01", "2022-06-01", defaultStart, now)
		require.NoError(t, err)
		assert.Equal(t, "2021-06-01", from.Format(DateLayout))
		assert.Equal(t, "2022-06-01", to.Format(DateLayout))
	})

	testCases := []struct {
		name       string
		start, end string
	}{
		{"bad start", "2021/06/01", ""},
		{"bad end", "", "tomorrow"},
		{"inverted", "2023-01-01", "2022-01-01"},
		{"empty range", "2023-01-01", "2023-01-01"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DateRange(tc.start, tc.end, defaultStart, now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}
