package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "billing_orchestrator"

// Step outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Saga holds the collectors observed by the saga coordinators
type Saga struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	publish  *prometheus.CounterVec
}

// NewSaga creates and registers the saga collectors on reg
func NewSaga(reg prometheus.Registerer) (*Saga, error) {
	s := &Saga{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_steps_total",
			Help:      "Remote saga steps executed, by operation, system and outcome.",
		}, []string{"operation", "system", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "saga_step_duration_seconds",
			Help:      "Latency of remote saga steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "system"}),
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_messages_total",
			Help:      "Workflow messages published, by message name and outcome.",
		}, []string{"message", "outcome"}),
	}
	for _, c := range []prometheus.Collector{s.steps, s.duration, s.publish} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ObserveStep records one remote call. A nil receiver is a no-op
func (s *Saga) ObserveStep(operation, system string, started time.Time, err error) {
	if s == nil {
		return
	}
	s.steps.WithLabelValues(operation, system, outcome(err)).Inc()
	s.duration.WithLabelValues(operation, system).Observe(time.Since(started).Seconds())
}

// ObservePublish records one workflow message publication. A nil receiver is a no-op
func (s *Saga) ObservePublish(message string, err error) {
	if s == nil {
		return
	}
	s.publish.WithLabelValues(message, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
