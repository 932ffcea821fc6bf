package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	table    domain.PriceTable
	err      error
	gotIDs   []string
	gotStart time.Time
	gotEnd   time.Time
}

func (s *stubSource) Fetch(_ context.Context, ids []string, start, end time.Time) (domain.PriceTable, error) {
	s.gotIDs = ids
	s.gotStart = start
	s.gotEnd = end
	return s.table, s.err
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func newTestRouter(source *stubSource) http.Handler {
	h := NewHandler(source, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), zerolog.Nop())
	h.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func post(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/prices", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return w, payload
}

func TestHandleFetchPrices_Success(t *testing.T) {
	source := &stubSource{table: domain.PriceTable{
		AssetIDs: []string{"AAA", "BBB"},
		Dates:    []time.Time{day(2), day(3)},
		Prices:   [][]float64{{10, 20}, {11, 21}},
	}}
	router := newTestRouter(source)

	w, payload := post(t, router, `{"stocks":["AAA","BBB"],"start_date":"2023-01-01"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, []interface{}{"2024-01-02", "2024-01-03"}, payload["dates"])

	data := payload["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{10.0, 11.0}, data["AAA"])
	assert.Equal(t, []interface{}{20.0, 21.0}, data["BBB"])

	assert.Equal(t, []string{"AAA", "BBB"}, source.gotIDs)
	assert.Equal(t, "2023-01-01", source.gotStart.Format("2006-01-02"))
	assert.Equal(t, "2024-06-01", source.gotEnd.Format("2006-01-02"))
}

func TestHandleFetchPrices_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		source     *stubSource
		wantStatus int
		wantKind   string
	}{
		{
			name:       "malformed body",
			body:       `{"asset_ids":`,
			source:     &stubSource{},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name:       "no assets",
			body:       `{"asset_ids":[]}`,
			source:     &stubSource{},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name:       "blank asset id",
			body:       `{"asset_ids":["AAA",""]}`,
			source:     &stubSource{},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name:       "bad date",
			body:       `{"asset_ids":["AAA"],"start_date":"yesterday"}`,
			source:     &stubSource{},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name:       "upstream failure",
			body:       `{"asset_ids":["AAA"]}`,
			source:     &stubSource{err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantKind:   "data_fetch",
		},
		{
			name:       "no data",
			body:       `{"asset_ids":["AAA"]}`,
			source:     &stubSource{table: domain.PriceTable{AssetIDs: []string{"AAA"}}},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "data",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, payload := post(t, newTestRouter(tc.source), tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, "error", payload["status"])
			assert.Equal(t, tc.wantKind, payload["kind"])
			assert.NotEmpty(t, payload["message"])
		})
	}
}
