// Package metrics aggregates job lifecycle counters for Prometheus
// scraping. Collector subscribes to the eventbus topics the engine
// publishes and republishes an aggregate snapshot on metrics_updated
// for the WebSocket hub without querying the store. StatusGauge and
// ComputeSummary, by contrast, count jobs per status by querying the
// store each time they run.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
)

// Snapshot is a point-in-time view of the counters Collector tracks,
// published on eventbus.TopicMetricsUpdated after every transition.
type Snapshot struct {
	Submitted int64 `json:"submitted"`
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	DLQ       int64 `json:"dlq"`
}

// Collector maintains the running lifecycle counters as Prometheus
// metrics and as plain atomics for cheap snapshotting. It implements
// prometheus.Collector so it can be registered directly with a
// prometheus.Registerer.
type Collector struct {
	submitted prometheus.Counter
	started   prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	retried   prometheus.Counter
	dlq       prometheus.Counter

	submittedCount atomic.Int64
	startedCount   atomic.Int64
	completedCount atomic.Int64
	failedCount    atomic.Int64
	retriedCount   atomic.Int64
	dlqCount       atomic.Int64

	bus *eventbus.Bus
	log *slog.Logger
}

// New creates a Collector and subscribes it to bus. The returned
// Collector must still be registered with a prometheus.Registerer by
// the caller (see Register).
func New(bus *eventbus.Bus, log *slog.Logger) *Collector {
	c := &Collector{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_submitted_total", Help: "Total jobs accepted by admission control.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_started_total", Help: "Total jobs leased by a worker.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_completed_total", Help: "Total jobs acknowledged as successful.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_failed_total", Help: "Total attempts acknowledged as failed, including ones later retried.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_retried_total", Help: "Total jobs bumped back to PENDING after a failed attempt.",
		}),
		dlq: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobqueue", Name: "jobs_dlq_total", Help: "Total jobs archived to the dead-letter queue.",
		}),
		bus: bus,
		log: log,
	}
	c.wire()
	return c
}

func (c *Collector) wire() {
	c.bus.Subscribe(eventbus.TopicJobSubmitted, func(ctx context.Context, payload any) {
		c.submitted.Inc()
		c.submittedCount.Add(1)
		c.publish(ctx)
	})
	c.bus.Subscribe(eventbus.TopicJobStarted, func(ctx context.Context, payload any) {
		c.started.Inc()
		c.startedCount.Add(1)
		c.publish(ctx)
	})
	c.bus.Subscribe(eventbus.TopicJobCompleted, func(ctx context.Context, payload any) {
		c.completed.Inc()
		c.completedCount.Add(1)
		c.publish(ctx)
	})
	c.bus.Subscribe(eventbus.TopicJobFailed, func(ctx context.Context, payload any) {
		c.failed.Inc()
		c.failedCount.Add(1)
		c.publish(ctx)
	})
	c.bus.Subscribe(eventbus.TopicJobRetry, func(ctx context.Context, payload any) {
		c.retried.Inc()
		c.retriedCount.Add(1)
		c.publish(ctx)
	})
	c.bus.Subscribe(eventbus.TopicJobDLQ, func(ctx context.Context, payload any) {
		c.dlq.Inc()
		c.dlqCount.Add(1)
		c.publish(ctx)
	})
}

// publish re-broadcasts the aggregate snapshot. It is called from
// within an eventbus handler and calls bus.Publish synchronously; this
// does not recurse because Collector does not subscribe to
// metrics_updated, the topic it publishes on. A metrics_updated
// subscriber that published a lifecycle topic would create a cycle.
func (c *Collector) publish(ctx context.Context) {
	c.bus.Publish(ctx, eventbus.TopicMetricsUpdated, c.Snapshot())
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Submitted: c.submittedCount.Load(),
		Started:   c.startedCount.Load(),
		Completed: c.completedCount.Load(),
		Failed:    c.failedCount.Load(),
		Retried:   c.retriedCount.Load(),
		DLQ:       c.dlqCount.Load(),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.submitted, c.started, c.completed, c.failed, c.retried, c.dlq}
}

// Register adds c to reg. Callers that don't need a custom registry
// can pass prometheus.DefaultRegisterer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

var trackedStatuses = []job.Status{job.Pending, job.Running, job.Completed, job.Failed, job.DLQ}

// Summary is the counts {total, pending, running, completed, failed,
// dlq} backing GET /api/v1/jobs/metrics/summary, computed as a sum of
// store.CountByStatus calls scoped to a single tenant (or all tenants,
// if tenantID is empty).
type Summary struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	DLQ       int64 `json:"dlq"`
}

// ComputeSummary issues one store.CountByStatus call per tracked status
// scoped to tenantID and sums them into Total. It performs no caching:
// every call reflects the store's state at the time it runs.
func ComputeSummary(ctx context.Context, s store.Store, tenantID string) (Summary, error) {
	var sum Summary
	for _, status := range trackedStatuses {
		count, err := s.CountByStatus(ctx, status, tenantID)
		if err != nil {
			return Summary{}, err
		}
		switch status {
		case job.Pending:
			sum.Pending = count
		case job.Running:
			sum.Running = count
		case job.Completed:
			sum.Completed = count
		case job.Failed:
			sum.Failed = count
		case job.DLQ:
			sum.DLQ = count
		}
		sum.Total += count
	}
	return sum, nil
}

// StatusGauge exposes the current backlog depth per status as a
// Prometheus gauge vector. Unlike Collector's counters, it is not
// event-driven: depth can only be known by asking the store, so a
// caller must periodically invoke Refresh (see refreshStatusGauge in
// cmd/jobqueue).
type StatusGauge struct {
	gauge *prometheus.GaugeVec
	store store.Store
}

// NewStatusGauge creates a StatusGauge backed by s. The returned value
// must be registered with a prometheus.Registerer by the caller.
func NewStatusGauge(s store.Store) *StatusGauge {
	return &StatusGauge{
		store: s,
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobqueue", Name: "jobs_by_status", Help: "Current number of jobs in each status, across all tenants.",
		}, []string{"status"}),
	}
}

// Describe implements prometheus.Collector.
func (g *StatusGauge) Describe(ch chan<- *prometheus.Desc) { g.gauge.Describe(ch) }

// Collect implements prometheus.Collector.
func (g *StatusGauge) Collect(ch chan<- prometheus.Metric) { g.gauge.Collect(ch) }

// Register adds g to reg.
func (g *StatusGauge) Register(reg prometheus.Registerer) error {
	return reg.Register(g)
}

// Refresh re-counts every tracked status across all tenants and updates
// the gauge vector accordingly.
func (g *StatusGauge) Refresh(ctx context.Context) error {
	for _, s := range trackedStatuses {
		count, err := g.store.CountByStatus(ctx, s, "")
		if err != nil {
			return err
		}
		g.gauge.WithLabelValues(s.String()).Set(float64(count))
	}
	return nil
}
