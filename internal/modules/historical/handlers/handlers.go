// Package handlers provides HTTP handlers for historical price data.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// PricesRequest is the body of POST /api/prices. "stocks" is accepted as an
// alias of "asset_ids".
type PricesRequest struct {
	AssetIDs  []string `json:"asset_ids" validate:"omitempty,dive,required"`
	Stocks    []string `json:"stocks,omitempty" validate:"omitempty,dive,required"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

// PricesResponse holds one price column per asset and the shared dates.
type PricesResponse struct {
	Status string               `json:"status"`
	Data   map[string][]float64 `json:"data"`
	Dates  []string             `json:"dates"`
}

// Handler handles historical price HTTP requests
type Handler struct {
	source       historical.Source
	validate     *validator.Validate
	defaultStart time.Time
	now          func() time.Time
	log          zerolog.Logger
}

// NewHandler creates a new historical price handler
func NewHandler(source historical.Source, defaultStart time.Time, log zerolog.Logger) *Handler {
	return &Handler{
		source:       source,
		validate:     validator.New(),
		defaultStart: defaultStart,
		now:          time.Now,
		log:          log.With().Str("handler", "historical").Logger(),
	}
}

// HandleFetchPrices handles POST /api/prices
func (h *Handler) HandleFetchPrices(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	ids := req.AssetIDs
	if len(ids) == 0 {
		ids = req.Stocks
	}
	if len(ids) == 0 {
		h.writeError(w, fmt.Errorf("%w: asset_ids must not be empty", domain.ErrValidation))
		return
	}

	start, end, err := historical.DateRange(req.StartDate, req.EndDate, h.defaultStart, h.now())
	if err != nil {
		h.writeError(w, err)
		return
	}

	table, err := h.source.Fetch(r.Context(), ids, start, end)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", domain.ErrDataFetch, err))
		return
	}
	if table.IsEmpty() {
		h.writeError(w, fmt.Errorf("%w: no price data for the requested assets", domain.ErrData))
		return
	}

	resp := PricesResponse{
		Status: "success",
		Data:   make(map[string][]float64, table.Cols()),
		Dates:  make([]string, len(table.Dates)),
	}
	for i, id := range table.AssetIDs {
		resp.Data[id] = table.Column(i)
	}
	for i, d := range table.Dates {
		resp.Dates[i] = d.Format(historical.DateLayout)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	event := h.log.Warn()
	if kind == domain.KindInternal || errors.Is(err, domain.ErrDataFetch) {
		event = h.log.Error()
	}
	event.Err(err).Str("kind", string(kind)).Msg("Price request failed")

	h.writeJSON(w, kind.HTTPStatus(), map[string]string{
		"status":  "error",
		"kind":    string(kind),
		"message": err.Error(),
	})
}
