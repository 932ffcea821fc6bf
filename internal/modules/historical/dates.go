package historical

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// DateRange resolves optional "YYYY-MM-DD" bounds. An empty start falls back
// to defaultStart and an empty end to today (UTC).
func DateRange(start, end string, defaultStart time.Time, now time.Time) (time.Time, time.Time, error) {
	from := defaultStart
	if s := strings.TrimSpace(start); s != "" {
		parsed, err := time.Parse(DateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start_date %q", domain.ErrValidation, start)
		}
		from = parsed
	}

	u := now.UTC()
	to := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if e := strings.TrimSpace(end); e != "" {
		parsed, err := time.Parse(DateLayout, e)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end_date %q", domain.ErrValidation, end)
		}
		to = parsed
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %s is not before end_date %s",
			domain.ErrValidation, from.Format(DateLayout), to.Format(DateLayout))
	}
	return from, to, nil
}
