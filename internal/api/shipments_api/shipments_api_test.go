package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/hubcity/shippodash/internal/services/query"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	env       events.Envelope
	rec       *models.ShipmentRecord
	processed bool
	err       error
}

func (f *fakeReconciler) Process(ctx context.Context, env events.Envelope) (*models.ShipmentRecord, bool, error) {
	f.env = env
	return f.rec, f.processed, f.err
}

type fakeQuery struct {
	listIn  query.ListParams
	listOut *query.ListResult
	listErr error

	getIn  string
	getOut *models.ShipmentRecord
	getErr error

	statsIn  int
	statsOut *query.StatsResult
	statsErr error
}

func (f *fakeQuery) List(ctx context.Context, p query.ListParams) (*query.ListResult, error) {
	f.listIn = p
	return f.listOut, f.listErr
}

func (f *fakeQuery) Get(ctx context.Context, id string) (*models.ShipmentRecord, error) {
	f.getIn = id
	return f.getOut, f.getErr
}

func (f *fakeQuery) Stats(ctx context.Context, days int) (*query.StatsResult, error) {
	f.statsIn = days
	return f.statsOut, f.statsErr
}

func newRouter(rec *fakeReconciler, q *fakeQuery) http.Handler {
	r := chi.NewRouter()
	New(rec, q).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhook_Applied(t *testing.T) {
	rec := &fakeReconciler{
		rec:       &models.ShipmentRecord{TransactionID: "txn_1", Status: models.ShipmentStatusTransit},
		processed: true,
	}
	h := newRouter(rec, &fakeQuery{})

	w := do(t, h, http.MethodPost, "/webhook/shippo", `{"event":"track_updated","data":{"transaction":"txn_1"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["received"])
	require.Equal(t, "track_updated", rec.env.Event)
}

func TestWebhook_NoBody(t *testing.T) {
	h := newRouter(&fakeReconciler{}, &fakeQuery{})
	w := do(t, h, http.MethodPost, "/webhook/shippo", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_ProcessingErrorStillAcked(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("pg down")}
	h := newRouter(rec, &fakeQuery{})

	w := do(t, h, http.MethodPost, "/webhook/shippo", `{"event":"transaction_created","data":{}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["received"])
	require.Contains(t, resp["error"], "pg down")
}

func TestWebhook_UnknownEventAcked(t *testing.T) {
	rec := &fakeReconciler{processed: false}
	h := newRouter(rec, &fakeQuery{})

	w := do(t, h, http.MethodPost, "/webhook/shippo", `{"event":"batch_created","data":{}}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListShipments_PassesParams(t *testing.T) {
	q := &fakeQuery{listOut: &query.ListResult{Success: true, Count: 0, Shipments: []*models.ShipmentRecord{}}}
	h := newRouter(&fakeReconciler{}, q)

	w := do(t, h, http.MethodGet, "/api/shippo/shipments?status=DELIVERED&search=rock&days=30&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, query.ListParams{Status: "DELIVERED", Search: "rock", Days: 30, Limit: 10}, q.listIn)

	var resp query.ListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Shipments)
}

func TestGetShipment(t *testing.T) {
	q := &fakeQuery{getOut: &models.ShipmentRecord{ID: 3, TransactionID: "txn_3"}}
	h := newRouter(&fakeReconciler{}, q)

	w := do(t, h, http.MethodGet, "/api/shippo/shipments/txn_3", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "txn_3", q.getIn)

	var resp struct {
		Success  bool                   `json:"success"`
		Shipment *models.ShipmentRecord `json:"shipment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, uint64(3), resp.Shipment.ID)
}

func TestGetShipment_NotFound(t *testing.T) {
	h := newRouter(&fakeReconciler{}, &fakeQuery{})
	w := do(t, h, http.MethodGet, "/api/shippo/shipments/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	q := &fakeQuery{statsOut: &query.StatsResult{Success: true, Total: 3, ByStatus: map[string]int{
		models.ShipmentStatusPreTransit: 1,
		models.ShipmentStatusDelivered:  2,
	}}}
	h := newRouter(&fakeReconciler{}, q)

	w := do(t, h, http.MethodGet, "/api/shippo/stats?days=30", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 30, q.statsIn)

	var resp query.StatsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Total)
	require.Equal(t, 2, resp.ByStatus[models.ShipmentStatusDelivered])
}

func TestHealthz(t *testing.T) {
	h := newRouter(&fakeReconciler{}, &fakeQuery{})
	w := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
