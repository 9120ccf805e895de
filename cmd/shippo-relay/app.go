package main

import (
	"context"
	"fmt"

	"github.com/hubcity/shippodash/config"
	"github.com/hubcity/shippodash/internal/broker/kafka"
	"github.com/hubcity/shippodash/internal/cache/rediscache"
)

type relayProducer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

type relayRateLimiter interface {
	AllowWebhook(ctx context.Context, remoteIP string, perMinute int64) (bool, error)
}

type relayFactories struct {
	newProducer    func(cfg *config.Config) relayProducer
	newRateLimiter func(cfg *config.Config) relayRateLimiter
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newProducer: func(cfg *config.Config) relayProducer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) relayRateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func RunShippoRelay(ctx context.Context, cfg *config.Config, f relayFactories, onListen func(httpAddr string)) error {
	topic := cfg.Kafka.ShipmentEventsTopicName
	if topic == "" {
		topic = "shippo.events"
	}
	httpAddr := cfg.ShippoDash.RelayHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8081"
	}
	rlPerMin := int64(cfg.ShippoDash.WebhookRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	producer := f.newProducer(cfg)
	defer func() { _ = producer.Close() }()

	rl := f.newRateLimiter(cfg)

	return runRelayHTTPServer(ctx, relayHTTPOpts{
		httpAddr: httpAddr,
		topic:    topic,
		rlPerMin: rlPerMin,
		onListen: onListen,
		producer: producer,
		limiter:  rl,
	})
}
