package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicelink_active_sessions",
		Help: "Number of live voice sessions",
	})
	ActiveToolCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicelink_active_tool_calls",
		Help: "Number of in-flight tool call dispatches",
	})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_sessions_started_total",
		Help: "Total sessions that reached the connected state",
	})
	SessionStartFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_session_start_failures_total",
		Help: "Total failed session starts by stage",
	}, []string{"stage"})
	ControlMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_control_messages_total",
		Help: "Total control channel messages received by type",
	}, []string{"type"})
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_tool_calls_total",
		Help: "Total tool call dispatches by outcome",
	}, []string{"outcome"})
	TranscriptEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_transcript_events_total",
		Help: "Total transcript events appended by role",
	}, []string{"role"})
	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_opus_decode_errors_total",
		Help: "Total Opus decode failures on the remote audio path",
	})
	EncodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_opus_encode_errors_total",
		Help: "Total Opus encode failures on the microphone path",
	})
)

// Histograms
var (
	SignalingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicelink_signaling_duration_ms",
		Help:    "SDP offer/answer exchange duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 15000},
	})
	ToolCallLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicelink_tool_call_duration_ms",
		Help:    "Tool dispatch duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
	})
)
