package reconcile

import (
	"testing"
	"time"

	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func str(s string) *string { return &s }

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	t = t.UTC()
	return &t
}

func trackPartial() events.Partial {
	return events.Partial{
		Kind:           events.KindTrackUpdated,
		TransactionID:  "txn_1",
		Identity:       events.IdentityKey{TransactionID: "txn_1"},
		TrackingNumber: str("1Z999AA10123456784"),
		Carrier:        str("UPS"),
		Status:         models.ShipmentStatusTransit,
		StatusDetails:  str("Departed facility"),
		StatusDate:     ts("2025-03-09T08:00:00Z"),
		ToCity:         str("Rockport"),
		ToState:        str("TX"),
		ServiceName:    str("Ground"),
		ReplaceHistory: true,
		History: []models.TrackingEvent{
			{Status: models.ShipmentStatusTransit, StatusDate: ts("2025-03-09T08:00:00Z")},
		},
	}
}

func TestApply_CreateFromTransactionCreated(t *testing.T) {
	p := events.Partial{
		Kind:          events.KindTransactionCreated,
		TransactionID: "txn_1",
		Identity:      events.IdentityKey{TransactionID: "txn_1"},
		Status:        models.ShipmentStatusPreTransit,
		LabelURL:      str("https://labels/1.pdf"),
		ObjectCreated: ts("2025-03-01T09:30:00Z"),
	}

	rec := Apply(nil, p, testNow)
	require.Equal(t, "txn_1", rec.TransactionID)
	require.Equal(t, models.ShipmentStatusPreTransit, rec.Status)
	require.Nil(t, rec.TrackingNumber)
	// created_at берём из события, updated_at — текущее время
	require.Equal(t, *ts("2025-03-01T09:30:00Z"), rec.CreatedAt)
	require.Equal(t, testNow, rec.UpdatedAt)
	require.NotNil(t, rec.TrackingHistory)
	require.Empty(t, rec.TrackingHistory)
}

func TestApply_TrackUpdatedIsIdempotent(t *testing.T) {
	p := trackPartial()

	once := Apply(nil, p, testNow)
	twice := Apply(once, p, testNow)
	require.Equal(t, once, twice)
}

func TestApply_CoalesceKeepsPopulatedFields(t *testing.T) {
	existing := &models.ShipmentRecord{
		TransactionID: "txn_1",
		Status:        models.ShipmentStatusPreTransit,
		LabelURL:      str("A"),
		CreatedAt:     testNow,
	}

	// label_url отсутствует в событии — существующее значение не трогаем
	upd := events.Partial{
		Kind:          events.KindTransactionUpdated,
		TransactionID: "txn_1",
		Status:        models.ShipmentStatusTransit,
	}
	rec := Apply(existing, upd, testNow)
	require.Equal(t, "A", *rec.LabelURL)
	require.Equal(t, models.ShipmentStatusTransit, rec.Status)

	// а присланное значение перезаписывает
	upd.LabelURL = str("B")
	rec = Apply(rec, upd, testNow)
	require.Equal(t, "B", *rec.LabelURL)
}

func TestApply_StatusAlwaysOverwrites(t *testing.T) {
	existing := Apply(nil, trackPartial(), testNow)
	require.Equal(t, models.ShipmentStatusTransit, existing.Status)

	// поздний transaction_updated со старым статусом всё равно побеждает:
	// проверок на устаревание нет, истина за отправителем
	upd := events.Partial{
		Kind:          events.KindTransactionUpdated,
		TransactionID: "txn_1",
		Status:        models.ShipmentStatusPreTransit,
	}
	rec := Apply(existing, upd, testNow)
	require.Equal(t, models.ShipmentStatusPreTransit, rec.Status)
	// а трекинговые поля не задеты
	require.Equal(t, "Rockport", *rec.ToCity)
}

func TestApply_DeliveredAtSetOnce(t *testing.T) {
	delivered := trackPartial()
	delivered.Status = models.ShipmentStatusDelivered
	delivered.StatusDate = ts("2025-03-09T16:20:00Z")
	delivered.DeliveredAt = delivered.StatusDate

	rec := Apply(nil, delivered, testNow)
	require.Equal(t, *ts("2025-03-09T16:20:00Z"), *rec.DeliveredAt)

	// последующее событие с другим статусом и другим кандидатом не меняет дату
	late := trackPartial()
	late.Status = models.ShipmentStatusFailure
	late.DeliveredAt = ts("2025-03-11T00:00:00Z")
	rec = Apply(rec, late, testNow)
	require.Equal(t, models.ShipmentStatusFailure, rec.Status)
	require.Equal(t, *ts("2025-03-09T16:20:00Z"), *rec.DeliveredAt)
}

func TestApply_HistoryWholesaleReplaced(t *testing.T) {
	first := trackPartial()
	rec := Apply(nil, first, testNow)
	require.Len(t, rec.TrackingHistory, 1)

	second := trackPartial()
	second.History = []models.TrackingEvent{
		{Status: models.ShipmentStatusTransit, StatusDate: ts("2025-03-09T08:00:00Z")},
		{Status: models.ShipmentStatusDelivered, StatusDate: ts("2025-03-10T10:00:00Z")},
	}
	rec = Apply(rec, second, testNow)
	require.Len(t, rec.TrackingHistory, 2)
	require.Equal(t, models.ShipmentStatusDelivered, rec.TrackingHistory[1].Status)
}

func TestApply_TransactionEventKeepsHistory(t *testing.T) {
	rec := Apply(nil, trackPartial(), testNow)
	require.Len(t, rec.TrackingHistory, 1)

	upd := events.Partial{
		Kind:          events.KindTransactionUpdated,
		TransactionID: "txn_1",
		Status:        models.ShipmentStatusTransit,
	}
	rec = Apply(rec, upd, testNow)
	require.Len(t, rec.TrackingHistory, 1)
}

func TestApply_ETACoalescesForTrackUpdated(t *testing.T) {
	rec := Apply(nil, events.Partial{
		Kind:          events.KindTransactionCreated,
		TransactionID: "txn_1",
		Status:        models.ShipmentStatusPreTransit,
		ETA:           ts("2025-03-12T00:00:00Z"),
	}, testNow)

	upd := trackPartial() // ETA в событии нет
	rec = Apply(rec, upd, testNow)
	require.Equal(t, *ts("2025-03-12T00:00:00Z"), *rec.ETA)
}
