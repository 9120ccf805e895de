package reconcile

import (
	"time"

	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
)

// Apply накладывает нормализованный срез события на существующую запись
// (existing == nil означает создание). Чистая функция: возвращает новую
// запись, аргументы не мутирует. Правила слияния:
//
//   - transaction_*: скаляры по COALESCE (новое значение побеждает только
//     если оно есть), статус — безусловно (истина "кто прислал последним").
//   - track_updated: трекинговые поля авторитетны и перезаписывают
//     существующие, когда присутствуют в событии; ETA — COALESCE.
//   - tracking_history: замещается целиком (upstream шлёт полную историю).
//   - delivered_at: пишется один раз, дальше не очищается.
//
// Повторное применение того же события даёт ту же запись, поэтому replay
// вебхука безопасен.
func Apply(existing *models.ShipmentRecord, p events.Partial, now time.Time) *models.ShipmentRecord {
	if existing == nil {
		return newRecord(p, now)
	}

	rec := *existing

	// Общие для всех видов событий поля.
	rec.TrackingNumber = coalesceStr(p.TrackingNumber, rec.TrackingNumber)
	rec.ETA = coalesceTime(p.ETA, rec.ETA)
	rec.Status = p.Status

	switch p.Kind {
	case events.KindTransactionCreated, events.KindTransactionUpdated:
		rec.Carrier = coalesceStr(p.Carrier, rec.Carrier)
		rec.Metadata = coalesceStr(p.Metadata, rec.Metadata)
		rec.LabelURL = coalesceStr(p.LabelURL, rec.LabelURL)
		rec.TrackingURL = coalesceStr(p.TrackingURL, rec.TrackingURL)

	case events.KindTrackUpdated:
		rec.Carrier = coalesceStr(p.Carrier, rec.Carrier)
		rec.StatusDetails = coalesceStr(p.StatusDetails, rec.StatusDetails)
		rec.StatusDate = coalesceTime(p.StatusDate, rec.StatusDate)
		rec.ToName = coalesceStr(p.ToName, rec.ToName)
		rec.ToCity = coalesceStr(p.ToCity, rec.ToCity)
		rec.ToState = coalesceStr(p.ToState, rec.ToState)
		rec.ToZip = coalesceStr(p.ToZip, rec.ToZip)
		rec.ToCountry = coalesceStr(p.ToCountry, rec.ToCountry)
		rec.FromCity = coalesceStr(p.FromCity, rec.FromCity)
		rec.FromState = coalesceStr(p.FromState, rec.FromState)
		rec.FromZip = coalesceStr(p.FromZip, rec.FromZip)
		rec.FromCountry = coalesceStr(p.FromCountry, rec.FromCountry)
		rec.ServiceName = coalesceStr(p.ServiceName, rec.ServiceName)
		rec.ServiceToken = coalesceStr(p.ServiceToken, rec.ServiceToken)
	}

	if p.ReplaceHistory {
		rec.TrackingHistory = copyHistory(p.History)
	}
	if rec.DeliveredAt == nil && p.DeliveredAt != nil {
		rec.DeliveredAt = p.DeliveredAt
	}

	rec.UpdatedAt = now
	return &rec
}

func newRecord(p events.Partial, now time.Time) *models.ShipmentRecord {
	rec := models.ShipmentRecord{
		TransactionID:  p.TransactionID,
		TrackingNumber: p.TrackingNumber,
		Carrier:        p.Carrier,
		Status:         p.Status,
		StatusDetails:  p.StatusDetails,
		StatusDate:     p.StatusDate,
		Metadata:       p.Metadata,
		LabelURL:       p.LabelURL,
		TrackingURL:    p.TrackingURL,
		ETA:            p.ETA,
		ToName:         p.ToName,
		ToCity:         p.ToCity,
		ToState:        p.ToState,
		ToZip:          p.ToZip,
		ToCountry:      p.ToCountry,
		FromCity:       p.FromCity,
		FromState:      p.FromState,
		FromZip:        p.FromZip,
		FromCountry:    p.FromCountry,
		ServiceName:    p.ServiceName,
		ServiceToken:   p.ServiceToken,
		DeliveredAt:    p.DeliveredAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.ReplaceHistory {
		rec.TrackingHistory = copyHistory(p.History)
	} else {
		rec.TrackingHistory = []models.TrackingEvent{}
	}
	if p.ObjectCreated != nil {
		rec.CreatedAt = *p.ObjectCreated
	}
	return &rec
}

func coalesceStr(next, current *string) *string {
	if next != nil {
		return next
	}
	return current
}

func coalesceTime(next, current *time.Time) *time.Time {
	if next != nil {
		return next
	}
	return current
}

func copyHistory(h []models.TrackingEvent) []models.TrackingEvent {
	out := make([]models.TrackingEvent, len(h))
	copy(out, h)
	return out
}
