// The consumer drains the booking event stream and hands each transition
// event to the push endpoint responsible for user-facing delivery. The
// engine only guarantees emission; this process owns retrying delivery.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/events"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total booking events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	notifySent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_notifications_sent_total",
		Help: "Total notifications forwarded to the push endpoint",
	})
	notifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_notification_errors_total",
		Help: "Total notifications dropped after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, notifySent, notifyErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "booking-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-booking-notifier"
	}

	pushEndpoint := os.Getenv("PUSH_ENDPOINT")
	if pushEndpoint == "" {
		pushEndpoint = "http://localhost:9000/push"
	}
	pusher := dispatch.NewPushDispatcher(pushEndpoint, os.Getenv("PUSH_KEY"))

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var ev events.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}
		if ev.UserID == "" {
			msgsInvalid.Inc()
			continue
		}

		if err := forwardWithRetry(ctx, pusher, ev, 3, 200*time.Millisecond); err != nil {
			notifyErrors.Inc()
			log.Printf("notification dropped ride=%s user=%s: %v", ev.RideID, ev.UserID, err)
			continue
		}
		notifySent.Inc()
	}
}

// Forwarder is the small subset of the dispatcher we need, so tests can
// substitute a fake.
type Forwarder interface {
	Notify(userID string, ev events.Event) error
}

// forwardWithRetry pushes one event with exponential backoff between
// attempts, returning the last error once attempts are exhausted.
func forwardWithRetry(ctx context.Context, f Forwarder, ev events.Event, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f.Notify(ev.UserID, ev); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
