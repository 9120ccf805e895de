package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hubcity/shippodash/internal/carriers"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownEvent — вид события нам неизвестен. Это не сбой:
	// адаптер подтверждает приём и ничего не делает.
	ErrUnknownEvent = errors.New("unknown event kind")
	// ErrNoIdentity — в событии нет ни transaction id, ни трек-номера,
	// привязать его не к чему.
	ErrNoIdentity = errors.New("event has no identity")
	// ErrMalformedPayload — data не разбирается как JSON нужной формы.
	// Такое событие не примется и при повторной доставке.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// IdentityKey — по чему резолвим запись: transaction id, иначе трек-номер.
type IdentityKey struct {
	TransactionID  string
	TrackingNumber string
}

// Partial — канонический разреженный срез ShipmentRecord, извлечённый из
// одного события. nil-поле значит "нет информации", а не "очистить".
type Partial struct {
	Kind     string
	Identity IdentityKey

	// TransactionID пишется при создании записи; если в событии его не
	// было, он синтезирован как "track_" + трек-номер.
	TransactionID string

	TrackingNumber *string
	Carrier        *string
	Status         string
	StatusDetails  *string
	StatusDate     *time.Time
	Metadata       *string
	LabelURL       *string
	TrackingURL    *string
	ETA            *time.Time

	ToName    *string
	ToCity    *string
	ToState   *string
	ToZip     *string
	ToCountry *string

	FromCity    *string
	FromState   *string
	FromZip     *string
	FromCountry *string

	ServiceName  *string
	ServiceToken *string

	// History валидна только при ReplaceHistory: upstream всегда шлёт
	// полную историю, поэтому она замещает сохранённую целиком.
	History        []models.TrackingEvent
	ReplaceHistory bool

	// DeliveredAt — кандидат на дату доставки (status == DELIVERED).
	DeliveredAt *time.Time

	// ObjectCreated — created_at от отправителя (transaction_created).
	ObjectCreated *time.Time
}

// Normalize разбирает конверт в Partial. Возвращает ErrUnknownEvent для
// неизвестных видов и ErrNoIdentity, если событие не к чему привязать.
func Normalize(env Envelope) (Partial, error) {
	switch env.Event {
	case KindTransactionCreated, KindTransactionUpdated:
		return normalizeTransaction(env.Event, env.Data)
	case KindTrackUpdated:
		return normalizeTrack(env.Data)
	default:
		return Partial{}, ErrUnknownEvent
	}
}

func normalizeTransaction(kind string, data json.RawMessage) (Partial, error) {
	var pl transactionPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &pl); err != nil {
			return Partial{}, errors.Wrapf(ErrMalformedPayload, "decode transaction payload: %v", err)
		}
	}

	p := Partial{
		Kind:           kind,
		TrackingNumber: cleanStr(pl.TrackingNumber),
		Metadata:       cleanStr(pl.Metadata),
		LabelURL:       cleanStr(pl.LabelURL),
		TrackingURL:    cleanStr(pl.TrackingURL),
		ETA:            parseTime(pl.ETA),
		ObjectCreated:  parseTime(pl.ObjectCreated),
	}

	p.Status = models.ShipmentStatusPreTransit
	if s := cleanStr(pl.TrackingStatus); s != nil {
		p.Status = strings.ToUpper(*s)
	}

	if p.TrackingNumber != nil {
		p.Carrier = strptr(carriers.Detect(*p.TrackingNumber))
	}

	return withIdentity(p, cleanStr(pl.ObjectID))
}

func normalizeTrack(data json.RawMessage) (Partial, error) {
	var pl trackPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &pl); err != nil {
			return Partial{}, errors.Wrapf(ErrMalformedPayload, "decode track payload: %v", err)
		}
	}

	// Битые/отсутствующие вложенные блоки считаем пустыми объектами.
	var to, from addressBlock
	decodeBlock(pl.AddressTo, &to)
	decodeBlock(pl.AddressFrom, &from)
	var svc serviceBlock
	decodeBlock(pl.ServiceLevel, &svc)
	var ts trackingStatusBlock
	decodeBlock(pl.TrackingStatus, &ts)

	p := Partial{
		Kind:           KindTrackUpdated,
		TrackingNumber: cleanStr(pl.TrackingNumber),
		StatusDetails:  cleanStr(ts.StatusDetails),
		StatusDate:     parseTime(ts.StatusDate),
		ETA:            parseTime(pl.ETA),
		ToName:         cleanStr(to.Name),
		ToCity:         cleanStr(to.City),
		ToState:        cleanStr(to.State),
		ToZip:          cleanStr(to.Zip),
		ToCountry:      cleanStr(to.Country),
		FromCity:       cleanStr(from.City),
		FromState:      cleanStr(from.State),
		FromZip:        cleanStr(from.Zip),
		FromCountry:    cleanStr(from.Country),
		ServiceName:    cleanStr(svc.Name),
		ServiceToken:   cleanStr(svc.Token),
		ReplaceHistory: true,
	}

	p.Status = models.ShipmentStatusUnknown
	if s := cleanStr(ts.Status); s != nil {
		p.Status = strings.ToUpper(*s)
	}
	if p.Status == models.ShipmentStatusDelivered {
		p.DeliveredAt = p.StatusDate
	}

	carrier := ""
	if c := cleanStr(pl.Carrier); c != nil {
		carrier = *c
	} else if p.TrackingNumber != nil {
		carrier = carriers.Detect(*p.TrackingNumber)
	}
	if carrier != "" {
		p.Carrier = strptr(strings.ToUpper(carrier))
	}

	var rawHistory []historyEntry
	decodeBlock(pl.History, &rawHistory)
	p.History = make([]models.TrackingEvent, 0, len(rawHistory))
	for _, h := range rawHistory {
		ev := models.TrackingEvent{
			Status:        models.ShipmentStatusUnknown,
			StatusDetails: cleanStr(h.StatusDetails),
			StatusDate:    parseTime(h.StatusDate),
		}
		if s := cleanStr(h.Status); s != nil {
			ev.Status = strings.ToUpper(*s)
		}
		if h.Location != nil {
			ev.Location = &models.EventLocation{
				City:    h.Location.City,
				State:   h.Location.State,
				Zip:     h.Location.Zip,
				Country: h.Location.Country,
			}
		}
		p.History = append(p.History, ev)
	}

	return withIdentity(p, cleanStr(pl.Transaction))
}

func withIdentity(p Partial, transactionID *string) (Partial, error) {
	if transactionID != nil {
		p.TransactionID = *transactionID
		p.Identity = IdentityKey{TransactionID: *transactionID}
		return p, nil
	}
	if p.TrackingNumber == nil {
		return Partial{}, ErrNoIdentity
	}
	// Нет transaction id — резолвим по трек-номеру, а на случай создания
	// новой записи синтезируем id.
	p.TransactionID = "track_" + *p.TrackingNumber
	p.Identity = IdentityKey{TrackingNumber: *p.TrackingNumber}
	return p, nil
}

// decodeBlock терпимо декодирует вложенный блок: любая ошибка оставляет
// получателя нулевым.
func decodeBlock(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

// cleanStr нормализует отсутствующие скаляры: nil и "" — это "нет данных".
func cleanStr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func strptr(s string) *string { return &s }
