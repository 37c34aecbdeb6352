package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests and multiple binaries in one
// process never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	Payments          *prometheus.CounterVec
	PaymentAmount     prometheus.Counter
	VouchersGenerated prometheus.Counter
	VouchersRedeemed  prometheus.Counter
	TerminalCommands  *prometheus.CounterVec
	JobsProcessed     *prometheus.CounterVec
	WSClients         prometheus.Gauge
}

func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "M-Pesa payments by final status",
		}, []string{"status"}),
		PaymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_amount_kes_total",
			Help:      "Sum of completed payment amounts in KES",
		}),
		VouchersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_generated_total",
			Help:      "Voucher codes generated",
		}),
		VouchersRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_redeemed_total",
			Help:      "Voucher codes redeemed on the captive portal",
		}),
		TerminalCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_commands_total",
			Help:      "RouterOS terminal commands by outcome",
		}, []string{"outcome"}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs by task type and outcome",
		}, []string{"task", "outcome"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpDuration,
		c.Payments, c.PaymentAmount,
		c.VouchersGenerated, c.VouchersRedeemed,
		c.TerminalCommands, c.JobsProcessed, c.WSClients,
	)
	return c
}

// Middleware records request count and latency per route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		c.httpRequests.WithLabelValues(ctx.Request.Method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(ctx.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) VoucherGenerated(n int) { c.VouchersGenerated.Add(float64(n)) }

func (c *Collector) VoucherRedeemed() { c.VouchersRedeemed.Inc() }

// PaymentSettled counts a payment reaching a final status. amount is only
// added for completed payments.
func (c *Collector) PaymentSettled(status string, amount float64) {
	c.Payments.WithLabelValues(status).Inc()
	if amount > 0 {
		c.PaymentAmount.Add(amount)
	}
}

func (c *Collector) TerminalCommand(outcome string) { c.TerminalCommands.WithLabelValues(outcome).Inc() }

func (c *Collector) JobProcessed(task, outcome string) {
	c.JobsProcessed.WithLabelValues(task, outcome).Inc()
}

// Nop satisfies the recorder interfaces of the services for tests and tools.
type Nop struct{}

func (Nop) VoucherGenerated(int)           {}
func (Nop) VoucherRedeemed()               {}
func (Nop) PaymentSettled(string, float64) {}
func (Nop) TerminalCommand(string)         {}
func (Nop) JobProcessed(string, string)    {}
