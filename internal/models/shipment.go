package models

import "time"

// Статусы, которые присылает Shippo. Набор открытый: храним как есть,
// специальная логика есть только у DELIVERED и внутреннего ERROR.
const (
	ShipmentStatusUnknown    = "UNKNOWN"
	ShipmentStatusPreTransit = "PRE_TRANSIT"
	ShipmentStatusTransit    = "TRANSIT"
	ShipmentStatusDelivered  = "DELIVERED"
	ShipmentStatusFailure    = "FAILURE"
	ShipmentStatusError      = "ERROR"
)

// ShipmentRecord — одна запись на физическую посылку. Идентичность:
// transaction_id (уникален), вторично — tracking_number.
type ShipmentRecord struct {
	ID            uint64     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	TrackingNumber *string   `json:"tracking_number"`
	Carrier       *string    `json:"carrier"`
	Status        string     `json:"status"`
	StatusDetails *string    `json:"status_details"`
	StatusDate    *time.Time `json:"status_date"`
	Metadata      *string    `json:"metadata"`
	LabelURL      *string    `json:"label_url"`
	TrackingURL   *string    `json:"tracking_url"`
	ETA           *time.Time `json:"eta"`

	ToName    *string `json:"to_name"`
	ToCity    *string `json:"to_city"`
	ToState   *string `json:"to_state"`
	ToZip     *string `json:"to_zip"`
	ToCountry *string `json:"to_country"`

	FromCity    *string `json:"from_city"`
	FromState   *string `json:"from_state"`
	FromZip     *string `json:"from_zip"`
	FromCountry *string `json:"from_country"`

	ServiceName  *string `json:"service_name"`
	ServiceToken *string `json:"service_token"`

	TrackingHistory []TrackingEvent `json:"tracking_history"`

	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TrackingEvent — элемент истории трекинга. После записи не мутируется;
// вся история целиком заменяется последним track_updated (см. reconcile).
type TrackingEvent struct {
	StatusDate    *time.Time     `json:"status_date"`
	Location      *EventLocation `json:"location"`
	Status        string         `json:"status"`
	StatusDetails *string        `json:"status_details"`
}

type EventLocation struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}
