package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hubcity/shippodash/internal/broker/messages"
	"github.com/hubcity/shippodash/internal/events"
)

type relayHTTPOpts struct {
	httpAddr string
	topic    string
	rlPerMin int64
	onListen func(httpAddr string)

	producer relayProducer
	limiter  relayRateLimiter
}

type relayStats struct {
	received  atomic.Int64
	published atomic.Int64
	limited   atomic.Int64
	rejected  atomic.Int64
}

func (s *relayStats) snapshot() map[string]int64 {
	return map[string]int64{
		"received":  s.received.Load(),
		"published": s.published.Load(),
		"limited":   s.limited.Load(),
		"rejected":  s.rejected.Load(),
	}
}

func runRelayHTTPServer(ctx context.Context, opts relayHTTPOpts) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	stats := &relayStats{}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.snapshot())
	})

	r.Post("/webhook/shippo", func(w http.ResponseWriter, r *http.Request) {
		stats.received.Add(1)

		ip := clientIP(r)
		ok, err := opts.limiter.AllowWebhook(r.Context(), ip, opts.rlPerMin)
		if err != nil {
			// Redis недоступен — пропускаем без лимита, терять вебхуки хуже.
			slog.Error("webhook ratelimit check failed", "ip", ip, "err", err)
			ok = true
		}
		if !ok {
			stats.limited.Add(1)
			writeRelayJSON(w, http.StatusTooManyRequests, map[string]any{"received": false, "error": "rate limit exceeded"})
			return
		}

		var env events.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			stats.rejected.Add(1)
			writeRelayJSON(w, http.StatusBadRequest, map[string]any{"received": false, "error": "no payload"})
			return
		}

		eventID := uuid.NewString()
		msg := messages.ShipmentEventReceived{
			EventID:    eventID,
			ReceivedAt: time.Now().UTC(),
			Event:      env.Event,
			Data:       env.Data,
		}
		value, err := json.Marshal(msg)
		if err != nil {
			stats.rejected.Add(1)
			writeRelayJSON(w, http.StatusInternalServerError, map[string]any{"received": false, "error": "encode failed"})
			return
		}

		if err := opts.producer.Publish(r.Context(), opts.topic, partitionKey(env, eventID), value); err != nil {
			stats.rejected.Add(1)
			slog.Error("webhook publish failed", "event", env.Event, "event_id", eventID, "err", err)
			writeRelayJSON(w, http.StatusServiceUnavailable, map[string]any{"received": false, "error": "publish failed"})
			return
		}

		stats.published.Add(1)
		writeRelayJSON(w, http.StatusOK, map[string]any{"received": true, "event_id": eventID})
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("relay HTTP server listening", "addr", lis.Addr().String(), "topic", opts.topic)
	err = srv.Serve(lis)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// partitionKey держит события одной посылки в одной партиции, чтобы
// консьюмер видел их по порядку. Для событий без идентичности порядок
// не важен — раскидываем по uuid.
func partitionKey(env events.Envelope, eventID string) []byte {
	var peek struct {
		ObjectID       string `json:"object_id"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.Unmarshal(env.Data, &peek); err == nil {
		// По трек-номеру события transaction_* и track_updated одной посылки
		// попадают в одну партицию.
		if peek.TrackingNumber != "" {
			return []byte(peek.TrackingNumber)
		}
		if peek.ObjectID != "" {
			return []byte(peek.ObjectID)
		}
	}
	return []byte(eventID)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRelayJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
