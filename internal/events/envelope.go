package events

import "encoding/json"

// Виды событий Shippo, которые мы умеем обрабатывать.
const (
	KindTransactionCreated = "transaction_created"
	KindTransactionUpdated = "transaction_updated"
	KindTrackUpdated       = "track_updated"
)

// Envelope — внешний конверт вебхука: { "event": "...", "data": {...} }.
// Data оставляем сырой: форма зависит от вида события.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// transactionPayload — data у transaction_created / transaction_updated.
type transactionPayload struct {
	ObjectID       *string `json:"object_id"`
	TrackingNumber *string `json:"tracking_number"`
	TrackingStatus *string `json:"tracking_status"`
	Metadata       *string `json:"metadata"`
	LabelURL       *string `json:"label_url"`
	TrackingURL    *string `json:"tracking_url_provider"`
	ETA            *string `json:"eta"`
	ObjectCreated  *string `json:"object_created"`
}

// trackPayload — data у track_updated. Вложенные блоки держим сырыми и
// декодируем каждый отдельно: Shippo местами шлёт строку вместо объекта,
// и такой блок должен превращаться в пустой, а не ронять событие.
type trackPayload struct {
	TrackingNumber *string         `json:"tracking_number"`
	Transaction    *string         `json:"transaction"`
	Carrier        *string         `json:"carrier"`
	ETA            *string         `json:"eta"`
	AddressTo      json.RawMessage `json:"address_to"`
	AddressFrom    json.RawMessage `json:"address_from"`
	ServiceLevel   json.RawMessage `json:"servicelevel"`
	TrackingStatus json.RawMessage `json:"tracking_status"`
	History        json.RawMessage `json:"tracking_history"`
}

type addressBlock struct {
	Name    *string `json:"name"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Zip     *string `json:"zip"`
	Country *string `json:"country"`
}

type serviceBlock struct {
	Name  *string `json:"name"`
	Token *string `json:"token"`
}

type trackingStatusBlock struct {
	Status        *string `json:"status"`
	StatusDetails *string `json:"status_details"`
	StatusDate    *string `json:"status_date"`
}

type historyEntry struct {
	Status        *string        `json:"status"`
	StatusDetails *string        `json:"status_details"`
	StatusDate    *string        `json:"status_date"`
	Location      *locationBlock `json:"location"`
}

type locationBlock struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}
