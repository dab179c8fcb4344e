// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nftx/trade-engine/internal/event"
)

var (
	// EventsTotal counts every emitted lifecycle event by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftx_events_total",
		Help: "Total lifecycle events emitted",
	}, []string{"kind"})

	// ListingsTotal counts created listings by order type.
	ListingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftx_listings_total",
		Help: "Total listings created",
	}, []string{"type"})

	// PurchasesTotal counts executed fixed-price and Dutch purchases.
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftx_purchases_total",
		Help: "Total listing purchases executed",
	})

	// OffersTotal counts created offers.
	OffersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftx_offers_total",
		Help: "Total offers created",
	})

	// BidsTotal counts accepted standing bids.
	BidsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftx_bids_total",
		Help: "Total auction bids accepted",
	})

	// SettlementsTotal counts auction settlements, buy-now included.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftx_auction_settlements_total",
		Help: "Total auctions settled",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nftx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Sink feeds emitted events into the counters above.
type Sink struct{}

func (Sink) Emit(e event.Event) {
	EventsTotal.WithLabelValues(e.Kind()).Inc()
	switch ev := e.(type) {
	case event.NewOrder:
		ListingsTotal.WithLabelValues(ev.OrderType.String()).Inc()
	case event.Purchase:
		PurchasesTotal.Inc()
	case event.NewOffer:
		OffersTotal.Inc()
	case event.NewBid:
		BidsTotal.Inc()
	case event.SettleAuction:
		SettlementsTotal.Inc()
	}
}
