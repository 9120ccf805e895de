package query

import (
	"context"
	"strings"
	"time"

	"github.com/hubcity/shippodash/internal/models"
	"github.com/hubcity/shippodash/internal/storage/pgshipments"
	"github.com/pkg/errors"
)

const (
	DefaultLookbackDays = 90
	DefaultLimit        = 200
	maxLimit            = 1000
)

type Repository interface {
	ListShipments(ctx context.Context, f pgshipments.ListFilter) ([]*models.ShipmentRecord, error)
	GetShipment(ctx context.Context, id string) (*models.ShipmentRecord, error)
	CountByStatus(ctx context.Context, since time.Time) (map[string]int, error)
}

// Service отвечает на read-запросы дашборда. Кэша нет намеренно: чтение
// идёт в то же хранилище, куда пишет reconcile, — read-your-writes.
type Service struct {
	repo Repository
	now  func() time.Time

	lookbackDays int
	listLimit    int
}

// New настраивает сервис. lookbackDays и listLimit задают дефолты для
// запросов без явных параметров; нулевые значения означают 90 дней / 200.
func New(repo Repository, lookbackDays, listLimit int) *Service {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if listLimit <= 0 || listLimit > maxLimit {
		listLimit = DefaultLimit
	}
	return &Service{
		repo:         repo,
		now:          time.Now,
		lookbackDays: lookbackDays,
		listLimit:    listLimit,
	}
}

type ListParams struct {
	Status string
	Search string
	Days   int
	Limit  int
}

type ListResult struct {
	Success   bool                     `json:"success"`
	Count     int                      `json:"count"`
	Shipments []*models.ShipmentRecord `json:"shipments"`
}

type StatsResult struct {
	Success  bool           `json:"success"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	limit := p.Limit
	if limit <= 0 || limit > maxLimit {
		limit = s.listLimit
	}

	items, err := s.repo.ListShipments(ctx, pgshipments.ListFilter{
		Status: strings.ToUpper(strings.TrimSpace(p.Status)),
		Search: strings.TrimSpace(p.Search),
		Since:  s.since(p.Days),
		Limit:  limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "list shipments")
	}

	return &ListResult{Success: true, Count: len(items), Shipments: items}, nil
}

// Get вернёт (nil, nil), если записи нет: not-found — это ответ, не сбой.
func (s *Service) Get(ctx context.Context, id string) (*models.ShipmentRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("shipment id is required")
	}
	rec, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get shipment")
	}
	return rec, nil
}

func (s *Service) Stats(ctx context.Context, days int) (*StatsResult, error) {
	byStatus, err := s.repo.CountByStatus(ctx, s.since(days))
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &StatsResult{Success: true, Total: total, ByStatus: byStatus}, nil
}

func (s *Service) since(days int) time.Time {
	if days <= 0 {
		days = s.lookbackDays
	}
	return s.now().UTC().AddDate(0, 0, -days)
}
