package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"nhooyr.io/websocket"
)

// streamWriteTimeout bounds a single frame write.
const streamWriteTimeout = 10 * time.Second

// maxStreamMessageSize caps an incoming request frame.
const maxStreamMessageSize = 1 << 20

// HandleStream handles GET /api/optimizer/stream. Each text frame carries an
// optimize request and is answered with one response frame, in order.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")
	conn.SetReadLimit(maxStreamMessageSize)

	ctx := r.Context()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Optimizer stream opened")

	for {
		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.log.Debug().Int("status", int(status)).Msg("Optimizer stream closed")
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if ctx.Err() == nil {
				h.log.Warn().Err(err).Msg("Optimizer stream read failed")
			}
			return
		}

		if msgType != websocket.MessageText {
			if err := h.writeFrame(ctx, conn, errorBody(
				fmt.Errorf("%w: expected a text frame", domain.ErrValidation), domain.KindValidation)); err != nil {
				return
			}
			continue
		}

		if err := h.writeFrame(ctx, conn, h.streamResponse(ctx, message)); err != nil {
			h.log.Warn().Err(err).Msg("Optimizer stream write failed")
			return
		}
	}
}

func (h *Handler) streamResponse(ctx context.Context, message []byte) interface{} {
	var req optimization.OptimizeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		err = fmt.Errorf("%w: invalid request: %v", domain.ErrValidation, err)
		return errorBody(err, domain.KindValidation)
	}

	resp, err := h.service.Optimize(ctx, req)
	if err != nil {
		kind := domain.Kind(err)
		h.logFailure(err, kind)
		return errorBody(err, kind)
	}
	return resp
}

func (h *Handler) writeFrame(ctx context.Context, conn *websocket.Conn, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
