package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byTxnID map[string]*models.ShipmentRecord
	byTrack map[string]*models.ShipmentRecord
	err     error

	lastKey events.IdentityKey
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byTxnID: map[string]*models.ShipmentRecord{},
		byTrack: map[string]*models.ShipmentRecord{},
	}
}

func (f *fakeStore) ReconcileShipment(ctx context.Context, key events.IdentityKey, apply func(existing *models.ShipmentRecord) (*models.ShipmentRecord, error)) (*models.ShipmentRecord, error) {
	f.lastKey = key
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var existing *models.ShipmentRecord
	if key.TransactionID != "" {
		existing = f.byTxnID[key.TransactionID]
	} else {
		existing = f.byTrack[key.TrackingNumber]
	}

	rec, err := apply(existing)
	if err != nil {
		return nil, err
	}
	f.byTxnID[rec.TransactionID] = rec
	if rec.TrackingNumber != nil {
		f.byTrack[*rec.TrackingNumber] = rec
	}
	return rec, nil
}

func TestService_Process_UnknownEventIsNoop(t *testing.T) {
	st := newFakeStore()
	svc := New(st)

	rec, processed, err := svc.Process(context.Background(), events.Envelope{
		Event: "batch_created",
		Data:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.False(t, processed)
	require.Nil(t, rec)
	require.Zero(t, st.calls)
}

func TestService_Process_CreatesThenMerges(t *testing.T) {
	st := newFakeStore()
	svc := New(st)
	ctx := context.Background()

	created, processed, err := svc.Process(ctx, events.Envelope{
		Event: events.KindTransactionCreated,
		Data:  json.RawMessage(`{"object_id": "txn_1", "tracking_number": "1Z999AA10123456784", "label_url": "https://labels/1.pdf"}`),
	})
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, models.ShipmentStatusPreTransit, created.Status)
	require.Equal(t, events.IdentityKey{TransactionID: "txn_1"}, st.lastKey)

	merged, processed, err := svc.Process(ctx, events.Envelope{
		Event: events.KindTrackUpdated,
		Data: json.RawMessage(`{
			"transaction": "txn_1",
			"tracking_number": "1Z999AA10123456784",
			"tracking_status": {"status": "TRANSIT", "status_details": "In transit"}
		}`),
	})
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, models.ShipmentStatusTransit, merged.Status)
	require.Equal(t, "https://labels/1.pdf", *merged.LabelURL) // coalesce сохранил
	require.Equal(t, created.CreatedAt, merged.CreatedAt)
}

func TestService_Process_IdentityFallbackCreatesSynthesizedID(t *testing.T) {
	st := newFakeStore()
	svc := New(st)

	rec, processed, err := svc.Process(context.Background(), events.Envelope{
		Event: events.KindTrackUpdated,
		Data:  json.RawMessage(`{"tracking_number": "1234567890"}`),
	})
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, "track_1234567890", rec.TransactionID)
	require.Equal(t, events.IdentityKey{TrackingNumber: "1234567890"}, st.lastKey)
}

func TestService_Process_NoIdentityIsError(t *testing.T) {
	st := newFakeStore()
	svc := New(st)

	_, _, err := svc.Process(context.Background(), events.Envelope{
		Event: events.KindTrackUpdated,
		Data:  json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, events.ErrNoIdentity)
	require.Zero(t, st.calls)
}

func TestService_Process_StoreErrorPropagates(t *testing.T) {
	st := newFakeStore()
	st.err = errors.New("pg down")
	svc := New(st)

	_, _, err := svc.Process(context.Background(), events.Envelope{
		Event: events.KindTransactionCreated,
		Data:  json.RawMessage(`{"object_id": "txn_1"}`),
	})
	require.ErrorIs(t, err, st.err)
}
