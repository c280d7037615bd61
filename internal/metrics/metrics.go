package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opay"

// Registry is the application's metric registry. It is separate from the
// prometheus default registry so tests can build isolated servers.
var Registry = prometheus.NewRegistry()

var (
	RPCCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Named procedure invocations by outcome",
	}, []string{"name", "outcome"})

	OrderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "order_transitions_total",
		Help:      "P2P order status transitions",
	}, []string{"from", "to"})

	TelegramSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "sends_total",
		Help:      "Telegram messages by outcome",
	}, []string{"outcome"})

	ScrapeCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scraper",
		Name:      "cache_total",
		Help:      "Scrape cache lookups",
	}, []string{"result"})

	ScrapeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scraper",
		Name:      "upstream_seconds",
		Help:      "Latency of scraping API calls",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
	})

	Reviews = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approvals",
		Name:      "reviews_total",
		Help:      "Admin reviews by resource kind and decision",
	}, []string{"kind", "decision"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RPCCalls,
		OrderTransitions,
		TelegramSends,
		ScrapeCache,
		ScrapeLatency,
		Reviews,
	)
}

// Handler exposes the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
