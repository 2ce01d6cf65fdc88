package alertapi

import (
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/beacon/internal/alert"
	"github.com/linnemanlabs/beacon/internal/alertrouter"
)

func (a *API) handleIngestAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &alertrouter.Result{Status: alertrouter.StatusError, Error: "unreadable body"})
		return
	}

	p, err := alert.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &alertrouter.Result{Status: alertrouter.StatusError, Error: "invalid payload"})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("beacon.monitor", p.Monitor))

	res, err := a.svc.Handle(r.Context(), p)
	if res == nil {
		res = &alertrouter.Result{Status: alertrouter.StatusError}
		if err != nil {
			res.Error = err.Error()
		}
	}

	code := statusCode(res, err)
	span.SetAttributes(
		attribute.String("beacon.result.status", string(res.Status)),
		attribute.Int("beacon.result.code", code),
	)
	if err != nil && code >= http.StatusInternalServerError {
		a.logger.Warn(r.Context(), "alert not fully handled", "monitor", p.Monitor, "code", code, "error", err)
	}
	writeJSON(w, code, res)
}

// statusCode maps a routing outcome to the HTTP response code.
func statusCode(res *alertrouter.Result, err error) int {
	switch {
	case errors.Is(err, alertrouter.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, alertrouter.ErrScheduleLookup):
		return http.StatusBadGateway
	case err != nil:
		return http.StatusInternalServerError
	case res.Status == alertrouter.StatusPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusOK
	}
}
