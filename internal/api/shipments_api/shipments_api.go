package shipments_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/hubcity/shippodash/internal/services/query"
)

type Reconciler interface {
	Process(ctx context.Context, env events.Envelope) (*models.ShipmentRecord, bool, error)
}

type Query interface {
	List(ctx context.Context, p query.ListParams) (*query.ListResult, error)
	Get(ctx context.Context, id string) (*models.ShipmentRecord, error)
	Stats(ctx context.Context, days int) (*query.StatsResult, error)
}

type API struct {
	reconciler Reconciler
	query      Query
}

func New(reconciler Reconciler, q Query) *API {
	return &API{reconciler: reconciler, query: q}
}

func (a *API) Register(r chi.Router) {
	r.Post("/webhook/shippo", a.Webhook)
	r.Get("/api/shippo/shipments", a.ListShipments)
	r.Get("/api/shippo/shipments/{id}", a.GetShipment)
	r.Get("/api/shippo/stats", a.Stats)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
}

// Webhook принимает событие Shippo. Любой исход обработки подтверждаем
// 200-м: Shippo ретраит не-2xx ответы, а replay нам и так безопасен —
// нет смысла заставлять его долбить событие, которое не примется никогда.
func (a *API) Webhook(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		httpError(w, http.StatusBadRequest, "no payload")
		return
	}

	rec, processed, err := a.reconciler.Process(r.Context(), env)
	if err != nil {
		slog.Error("webhook processing failed", "event", env.Event, "err", err)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "error": err.Error()})
		return
	}
	if !processed {
		slog.Info("webhook ignored", "event", env.Event)
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	slog.Info("webhook applied", "event", env.Event, "transaction_id", rec.TransactionID, "status", rec.Status)
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (a *API) ListShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := a.query.List(r.Context(), query.ListParams{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Days:   atoiOr(q.Get("days"), 0),
		Limit:  atoiOr(q.Get("limit"), 0),
	})
	if err != nil {
		slog.Error("list shipments failed", "err", err)
		httpError(w, http.StatusInternalServerError, "failed to list shipments")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) GetShipment(w http.ResponseWriter, r *http.Request) {
	rec, err := a.query.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("get shipment failed", "err", err)
		httpError(w, http.StatusInternalServerError, "failed to get shipment")
		return
	}
	if rec == nil {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shipment": rec})
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	out, err := a.query.Stats(r.Context(), atoiOr(r.URL.Query().Get("days"), 0))
	if err != nil {
		slog.Error("stats failed", "err", err)
		httpError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
