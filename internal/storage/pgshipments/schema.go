package pgshipments

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  transaction_id TEXT NOT NULL UNIQUE,
  tracking_number TEXT NULL,
  carrier TEXT NULL,
  status TEXT NOT NULL DEFAULT 'UNKNOWN',
  status_details TEXT NULL,
  status_date TIMESTAMPTZ NULL,
  metadata TEXT NULL,
  label_url TEXT NULL,
  tracking_url TEXT NULL,
  eta TIMESTAMPTZ NULL,
  to_name TEXT NULL,
  to_city TEXT NULL,
  to_state TEXT NULL,
  to_zip TEXT NULL,
  to_country TEXT NULL,
  from_city TEXT NULL,
  from_state TEXT NULL,
  from_zip TEXT NULL,
  from_country TEXT NULL,
  service_name TEXT NULL,
  service_token TEXT NULL,
  tracking_history JSONB NOT NULL DEFAULT '[]',
  delivered_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_tracking_number ON shipments(tracking_number)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_created_at ON shipments(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_metadata ON shipments(metadata)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
