// Package metrics records interview session activity with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so tests can create as many as they like.
type Recorder struct {
	registry          *prometheus.Registry
	controlMessages   *prometheus.CounterVec
	personaSwitches   *prometheus.CounterVec
	analysisCalls     *prometheus.CounterVec
	analysisDuration  *prometheus.HistogramVec
	greetingsCanceled prometheus.Counter
	activeSessions    prometheus.Gauge
}

// NewRecorder creates a Recorder with process and Go collectors attached.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		controlMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_control_messages_total",
				Help: "Control channel messages by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		personaSwitches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_persona_switches_total",
				Help: "Persona hot swaps by target mode",
			},
			[]string{"mode"},
		),
		analysisCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_code_analysis_total",
				Help: "analyze_code invocations by code source and status",
			},
			[]string{"source", "status"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "interview_code_analysis_duration_seconds",
				Help:    "Latency of the external code analysis call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		greetingsCanceled: factory.NewCounter(prometheus.CounterOpts{
			Name: "interview_greetings_superseded_total",
			Help: "Greetings interrupted because a newer INIT arrived",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "interview_active_sessions",
			Help: "Sessions with a live room socket",
		}),
	}
}

// Handler exposes the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// TopicOther labels control messages whose topic is not a known command.
const TopicOther = "other"

// controlTopics bounds the topic label; clients choose the topic string.
var controlTopics = map[string]bool{
	"INIT":        true,
	"CODE_UPDATE": true,
}

// ControlMessage counts one decoded or dropped control message. Topics other
// than the known commands are counted under TopicOther.
func (r *Recorder) ControlMessage(topic, outcome string) {
	if r == nil {
		return
	}
	if !controlTopics[topic] {
		topic = TopicOther
	}
	r.controlMessages.WithLabelValues(topic, outcome).Inc()
}

// PersonaSwitch counts one persona swap.
func (r *Recorder) PersonaSwitch(mode string) {
	if r == nil {
		return
	}
	r.personaSwitches.WithLabelValues(mode).Inc()
}

// GreetingSuperseded counts a greeting interrupted by a newer INIT.
func (r *Recorder) GreetingSuperseded() {
	if r == nil {
		return
	}
	r.greetingsCanceled.Inc()
}

// AnalysisCall counts one analyze_code invocation.
func (r *Recorder) AnalysisCall(source, status string) {
	if r == nil {
		return
	}
	r.analysisCalls.WithLabelValues(source, status).Inc()
}

// ObserveAnalysis records the duration of one external analysis call.
func (r *Recorder) ObserveAnalysis(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.analysisDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SessionOpened increments the active session gauge.
func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.activeSessions.Dec()
}
