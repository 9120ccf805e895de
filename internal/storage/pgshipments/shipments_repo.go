package pgshipments

import (
	"context"
	"encoding/json"

	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, transaction_id, tracking_number, carrier,
  status, status_details, status_date,
  metadata, label_url, tracking_url, eta,
  to_name, to_city, to_state, to_zip, to_country,
  from_city, from_state, from_zip, from_country,
  service_name, service_token,
  tracking_history, delivered_at,
  created_at, updated_at`

// ReconcileShipment — одно атомарное "найти → слить → сохранить".
// Строка идентичности блокируется SELECT ... FOR UPDATE, чтобы два события
// по одной посылке не потеряли апдейт друг друга; гонку одновременного
// создания снимает ON CONFLICT по transaction_id со вторым заходом.
func (s *Storage) ReconcileShipment(ctx context.Context, key events.IdentityKey, apply func(existing *models.ShipmentRecord) (*models.ShipmentRecord, error)) (*models.ShipmentRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := s.reconcileInTx(ctx, tx, key, apply)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return rec, nil
}

func (s *Storage) reconcileInTx(ctx context.Context, tx pgx.Tx, key events.IdentityKey, apply func(existing *models.ShipmentRecord) (*models.ShipmentRecord, error)) (*models.ShipmentRecord, error) {
	existing, err := lockByIdentity(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	rec, err := apply(existing)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		rec.ID = existing.ID
		if err := updateShipment(ctx, tx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	inserted, err := insertShipment(ctx, tx, rec)
	if err != nil {
		return nil, err
	}
	if inserted {
		return rec, nil
	}

	// Конкурент успел создать запись между нашим SELECT и INSERT.
	// Теперь она точно есть и блокируется — повторяем слияние поверх неё.
	existing, err = lockByIdentity(ctx, tx, events.IdentityKey{TransactionID: rec.TransactionID})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("shipment vanished after insert conflict")
	}
	rec, err = apply(existing)
	if err != nil {
		return nil, err
	}
	rec.ID = existing.ID
	if err := updateShipment(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func lockByIdentity(ctx context.Context, tx pgx.Tx, key events.IdentityKey) (*models.ShipmentRecord, error) {
	var (
		where string
		arg   string
	)
	if key.TransactionID != "" {
		where, arg = "transaction_id = $1", key.TransactionID
	} else {
		where, arg = "tracking_number = $1", key.TrackingNumber
	}

	// Идентичность уникальна по контракту; если дубликаты всё же есть,
	// берём первую запись.
	rows, err := tx.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE `+where+`
ORDER BY id
LIMIT 1
FOR UPDATE
`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "lock shipment")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	rec, err := scanShipment(rows)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func insertShipment(ctx context.Context, tx pgx.Tx, rec *models.ShipmentRecord) (bool, error) {
	history, err := marshalHistory(rec.TrackingHistory)
	if err != nil {
		return false, err
	}

	rows, err := tx.Query(ctx, `
INSERT INTO shipments (
  transaction_id, tracking_number, carrier,
  status, status_details, status_date,
  metadata, label_url, tracking_url, eta,
  to_name, to_city, to_state, to_zip, to_country,
  from_city, from_state, from_zip, from_country,
  service_name, service_token,
  tracking_history, delivered_at,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (transaction_id) DO NOTHING
RETURNING id
`,
		rec.TransactionID, rec.TrackingNumber, rec.Carrier,
		rec.Status, rec.StatusDetails, rec.StatusDate,
		rec.Metadata, rec.LabelURL, rec.TrackingURL, rec.ETA,
		rec.ToName, rec.ToCity, rec.ToState, rec.ToZip, rec.ToCountry,
		rec.FromCity, rec.FromState, rec.FromZip, rec.FromCountry,
		rec.ServiceName, rec.ServiceToken,
		history, rec.DeliveredAt,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert shipment")
	}
	defer rows.Close()

	if !rows.Next() {
		return false, errors.Wrap(rows.Err(), "rows")
	}
	if err := rows.Scan(&rec.ID); err != nil {
		return false, errors.Wrap(err, "scan inserted id")
	}
	return true, nil
}

func updateShipment(ctx context.Context, tx pgx.Tx, rec *models.ShipmentRecord) error {
	history, err := marshalHistory(rec.TrackingHistory)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  tracking_number = $2,
  carrier = $3,
  status = $4,
  status_details = $5,
  status_date = $6,
  metadata = $7,
  label_url = $8,
  tracking_url = $9,
  eta = $10,
  to_name = $11,
  to_city = $12,
  to_state = $13,
  to_zip = $14,
  to_country = $15,
  from_city = $16,
  from_state = $17,
  from_zip = $18,
  from_country = $19,
  service_name = $20,
  service_token = $21,
  tracking_history = $22,
  delivered_at = $23,
  updated_at = $24
WHERE id = $1
`,
		rec.ID,
		rec.TrackingNumber, rec.Carrier,
		rec.Status, rec.StatusDetails, rec.StatusDate,
		rec.Metadata, rec.LabelURL, rec.TrackingURL, rec.ETA,
		rec.ToName, rec.ToCity, rec.ToState, rec.ToZip, rec.ToCountry,
		rec.FromCity, rec.FromState, rec.FromZip, rec.FromCountry,
		rec.ServiceName, rec.ServiceToken,
		history, rec.DeliveredAt,
		rec.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "update shipment")
}

func marshalHistory(h []models.TrackingEvent) ([]byte, error) {
	if h == nil {
		h = []models.TrackingEvent{}
	}
	b, err := json.Marshal(h)
	return b, errors.Wrap(err, "marshal tracking history")
}

// scanShipment читает одну строку shipments. Битая история не валит чтение:
// деградируем до пустого списка.
func scanShipment(rows pgx.Rows) (*models.ShipmentRecord, error) {
	var rec models.ShipmentRecord
	var history []byte
	if err := rows.Scan(
		&rec.ID, &rec.TransactionID, &rec.TrackingNumber, &rec.Carrier,
		&rec.Status, &rec.StatusDetails, &rec.StatusDate,
		&rec.Metadata, &rec.LabelURL, &rec.TrackingURL, &rec.ETA,
		&rec.ToName, &rec.ToCity, &rec.ToState, &rec.ToZip, &rec.ToCountry,
		&rec.FromCity, &rec.FromState, &rec.FromZip, &rec.FromCountry,
		&rec.ServiceName, &rec.ServiceToken,
		&history, &rec.DeliveredAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}

	rec.TrackingHistory = []models.TrackingEvent{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.TrackingHistory); err != nil {
			rec.TrackingHistory = []models.TrackingEvent{}
		}
	}
	return &rec, nil
}
