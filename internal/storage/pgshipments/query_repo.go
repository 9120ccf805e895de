package pgshipments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hubcity/shippodash/internal/models"
	"github.com/pkg/errors"
)

// ListFilter — параметры выборки. Status пустой или "ALL" — без фильтра,
// Search — подстрока без учёта регистра. Записи со статусом ERROR не
// возвращаются никогда.
type ListFilter struct {
	Status string
	Search string
	Since  time.Time
	Limit  int
}

func (s *Storage) ListShipments(ctx context.Context, f ListFilter) ([]*models.ShipmentRecord, error) {
	sql := `
SELECT` + shipmentColumns + `
FROM shipments
WHERE created_at >= $1
  AND status <> $2`
	args := []any{f.Since.UTC(), models.ShipmentStatusError}

	if f.Status != "" && f.Status != "ALL" {
		args = append(args, f.Status)
		sql += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if f.Search != "" {
		args = append(args, likePattern(f.Search))
		n := len(args)
		sql += fmt.Sprintf(`
  AND (
    tracking_number ILIKE $%d OR
    metadata ILIKE $%d OR
    to_city ILIKE $%d OR
    carrier ILIKE $%d
  )`, n, n, n, n)
	}

	args = append(args, f.Limit)
	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.ShipmentRecord, 0)
	for rows.Next() {
		rec, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetShipment ищет запись по внутреннему id, затем по трек-номеру, затем
// по transaction id — первое совпадение побеждает. Нет записи — (nil, nil).
func (s *Storage) GetShipment(ctx context.Context, id string) (*models.ShipmentRecord, error) {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		rec, err := s.getOne(ctx, "id = $1", n)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	rec, err := s.getOne(ctx, "tracking_number = $1", id)
	if err != nil || rec != nil {
		return rec, err
	}
	return s.getOne(ctx, "transaction_id = $1", id)
}

// likePattern превращает пользовательский ввод в шаблон "подстрока":
// метасимволы LIKE экранируются, чтобы "100%" искал буквально "100%".
func likePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return "%" + s + "%"
}

func (s *Storage) getOne(ctx context.Context, where string, arg any) (*models.ShipmentRecord, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE `+where+`
ORDER BY id
LIMIT 1
`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return scanShipment(rows)
}

// CountByStatus считает записи по статусам внутри окна, ERROR исключая.
func (s *Storage) CountByStatus(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
SELECT status, COUNT(*)
FROM shipments
WHERE created_at >= $1
  AND status <> $2
GROUP BY status
`, since.UTC(), models.ShipmentStatusError)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[status] = count
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
