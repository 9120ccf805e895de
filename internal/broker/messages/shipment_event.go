package messages

import (
	"encoding/json"
	"time"
)

// ShipmentEventReceived — сырое событие вебхука, переложенное relay-ом в
// Kafka. Конверт Shippo не трогаем: нормализация происходит на консьюмере.
type ShipmentEventReceived struct {
	// EventID проставляется relay-ом (uuid) для корреляции в логах.
	EventID    string    `json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`

	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
