package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Error  string        `json:"error"`
	Reason orders.Reason `json:"reason,omitempty"`
}

func statusCode(err error) int {
	var (
		ve *orders.ValidationError
		ce *orders.ConflictError
		ie *orders.InsufficientInventoryError
		ne *orders.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders business errors with their message and reason code.
// Anything else is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		writeJSON(w, code, errorBody{Error: "internal error"})
		return
	}
	body := errorBody{Error: err.Error()}
	if reason, ok := orders.ReasonOf(err); ok {
		body.Reason = reason
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Reason: orders.ReasonInvalidInput})
}
