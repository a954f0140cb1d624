package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registerOnce sync.Once

	registrationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leq",
			Subsystem: "registrar",
			Name:      "registrations_total",
			Help:      "Registration datagrams sent, by outcome.",
		},
		[]string{"protocol", "outcome"},
	)
	registrationsSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leq",
			Subsystem: "monitor",
			Name:      "registrations_total",
			Help:      "Registration datagrams received by the monitor, by outcome.",
		},
		[]string{"outcome"},
	)
	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leq",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Connections accepted by the server.",
		},
	)
	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leq",
			Subsystem: "server",
			Name:      "received_bytes_total",
			Help:      "Stream bytes relayed to the output sink.",
		},
	)
	connectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leq",
			Subsystem: "server",
			Name:      "connection_duration_seconds",
			Help:      "Time from accept to peer close.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	linesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leq",
			Subsystem: "client",
			Name:      "lines_total",
			Help:      "Input lines forwarded by the client.",
		},
		[]string{"end"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			registrationsSent,
			registrationsSeen,
			connectionsAccepted,
			bytesReceived,
			connectionDuration,
			linesSent,
		)
	})
}

func RecordRegistrationSent(protocol string, err error) {
	RegisterMetrics()
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	registrationsSent.WithLabelValues(protocol, outcome).Inc()
}

func RecordRegistrationSeen(outcome string) {
	RegisterMetrics()
	registrationsSeen.WithLabelValues(outcome).Inc()
}

func RecordConnection(duration time.Duration, bytes int64) {
	RegisterMetrics()
	connectionsAccepted.Inc()
	if bytes > 0 {
		bytesReceived.Add(float64(bytes))
	}
	connectionDuration.Observe(duration.Seconds())
}

func RecordLines(end string, lines int) {
	RegisterMetrics()
	linesSent.WithLabelValues(end).Add(float64(lines))
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("observability.Serve metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
