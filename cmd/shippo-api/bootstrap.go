package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubcity/shippodash/config"
	"github.com/hubcity/shippodash/internal/broker/kafka"
	"github.com/hubcity/shippodash/internal/reconcile"
	"github.com/hubcity/shippodash/internal/services/query"
	"github.com/hubcity/shippodash/internal/storage/pgshipments"
)

type shippoAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shippoAPIOpts
	rec      *reconcile.Service
	q        *query.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapShippoAPI() *shippoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShippoDash.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShippoDash.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "shippo-api"
	}
	topic := cfg.Kafka.ShipmentEventsTopicName
	if topic == "" {
		topic = "shippo.events"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	rec := reconcile.New(st)
	q := query.New(st, cfg.ShippoDash.QueryLookbackDays, cfg.ShippoDash.QueryListLimit)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shippoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shippoAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		rec:      rec,
		q:        q,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shippoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *shippoAPIApp) Run() error {
	return runShippoAPI(a.ctx, a.opts, a.rec, a.q, a.consumer)
}
