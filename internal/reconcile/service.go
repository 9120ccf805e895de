package reconcile

import (
	"context"
	"time"

	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/models"
	"github.com/pkg/errors"
)

// Store — то, что сервису нужно от хранилища: атомарный цикл
// "найти по идентичности → применить apply → сохранить". Сериализацию
// конкурирующих событий по одной посылке обеспечивает реализация.
type Store interface {
	ReconcileShipment(ctx context.Context, key events.IdentityKey, apply func(existing *models.ShipmentRecord) (*models.ShipmentRecord, error)) (*models.ShipmentRecord, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Process прогоняет конверт через normalize → resolve → merge.
// Возвращает processed=false для неизвестных видов событий: это штатный
// no-op, отправителю всё равно отвечаем "принято".
func (s *Service) Process(ctx context.Context, env events.Envelope) (*models.ShipmentRecord, bool, error) {
	p, err := events.Normalize(env)
	if errors.Is(err, events.ErrUnknownEvent) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	rec, err := s.store.ReconcileShipment(ctx, p.Identity, func(existing *models.ShipmentRecord) (*models.ShipmentRecord, error) {
		return Apply(existing, p, now), nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reconcile shipment")
	}
	return rec, true, nil
}
