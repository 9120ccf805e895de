package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hubcity/shippodash/internal/api/shipments_api"
	"github.com/hubcity/shippodash/internal/broker/messages"
	"github.com/hubcity/shippodash/internal/events"
	"github.com/hubcity/shippodash/internal/reconcile"
	"github.com/hubcity/shippodash/internal/services/query"
	"github.com/pkg/errors"
)

type shippoAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runShippoAPI(ctx context.Context, opts shippoAPIOpts, rec *reconcile.Service, q *query.Service, consumer kafkaConsumer) error {
	api := shipments_api.New(rec, q)

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	api.Register(r)

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	consumerErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumerErr <- consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.ShipmentEventReceived
			if err := json.Unmarshal(value, &m); err != nil {
				// Битое сообщение не разберётся и при повторной доставке —
				// логируем и коммитим, иначе оно навсегда заклинит партицию.
				slog.Error("skip undecodable shipment event", "err", err)
				return nil
			}
			_, _, err := rec.Process(ctx, events.Envelope{Event: m.Event, Data: m.Data})
			switch {
			case err == nil:
				return nil
			case errors.Is(err, events.ErrNoIdentity), errors.Is(err, events.ErrMalformedPayload):
				// Дефект самого события: повтор не поможет, оффсет коммитим.
				slog.Error("drop unprocessable shipment event", "event", m.Event, "event_id", m.EventID, "err", err)
				return nil
			default:
				// Ошибка хранилища. Возвращаем её, чтобы оффсет не закоммитился
				// и событие пришло снова после рестарта.
				return errors.Wrapf(err, "shipment event %s", m.EventID)
			}
		})
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())

	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-consumerErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "kafka consumer stopped")
	case err := <-httpErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}
