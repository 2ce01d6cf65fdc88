package alertapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/beacon/internal/alert"
	"github.com/linnemanlabs/beacon/internal/alertrouter"
	"github.com/linnemanlabs/beacon/internal/incident"
)

// RouterService defines the business operations alertapi needs.
type RouterService interface {
	Handle(ctx context.Context, p *alert.Payload) (*alertrouter.Result, error)
	Incidents(ctx context.Context, status incident.Status) ([]incident.Incident, error)
	Incident(ctx context.Context, id int64) (*incident.Incident, bool, error)
	OnCall(ctx context.Context) ([]string, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    RouterService
}

// New creates a new API handler.
func New(logger log.Logger, svc RouterService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("router service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. POST /alert is the
// legacy ingest path kept for monitors configured against it.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/alert", a.handleIngestAlert)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alerts", a.handleIngestAlert)
		r.Get("/incidents", a.handleListIncidents)
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Get("/oncall", a.handleOnCall)
	})
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := incident.Status(r.URL.Query().Get("status"))
	switch status {
	case "", incident.StatusFiring, incident.StatusResolved:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	list, err := a.svc.Incidents(r.Context(), status)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents", "status", status)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("beacon.incidents", len(list)))
	writeJSON(w, http.StatusOK, map[string]any{"incidents": list})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("beacon.incident.id", id))

	in, ok, err := a.svc.Incident(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("beacon.incident.status", string(in.Status)))
	writeJSON(w, http.StatusOK, in)
}

func (a *API) handleOnCall(w http.ResponseWriter, r *http.Request) {
	names, err := a.svc.OnCall(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "on-call lookup failed")
		writeError(w, http.StatusBadGateway, "schedule lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"oncall": names})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
