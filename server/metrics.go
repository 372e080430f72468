package server

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics counts page and activation traffic
type Metrics struct {
	pagesRendered      atomic.Int64
	renderFailures     atomic.Int64
	activations        atomic.Int64
	activationFailures atomic.Int64
	rateLimited        atomic.Int64
	tracesStored       atomic.Int64

	// Per-trace page views
	traceViews sync.Map // map[string]*atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordPage counts one rendered page; id is "" for the default page
func (m *Metrics) RecordPage(id string) {
	m.pagesRendered.Add(1)
	if id == "" {
		return
	}
	if val, ok := m.traceViews.Load(id); ok {
		val.(*atomic.Int64).Add(1)
		return
	}
	actual, _ := m.traceViews.LoadOrStore(id, new(atomic.Int64))
	actual.(*atomic.Int64).Add(1)
}

func (m *Metrics) RecordRenderFailure() { m.renderFailures.Add(1) }

func (m *Metrics) RecordActivation(ok bool) {
	if ok {
		m.activations.Add(1)
		return
	}
	m.activationFailures.Add(1)
}

func (m *Metrics) RecordRateLimited() { m.rateLimited.Add(1) }

func (m *Metrics) RecordStored() { m.tracesStored.Add(1) }

// MetricsResponse is the JSON form of the counters
type MetricsResponse struct {
	PagesRendered      int64            `json:"pages_rendered"`
	RenderFailures     int64            `json:"render_failures"`
	Activations        int64            `json:"activations"`
	ActivationFailures int64            `json:"activation_failures"`
	RateLimited        int64            `json:"rate_limited"`
	TracesStored       int64            `json:"traces_stored"`
	TraceViews         map[string]int64 `json:"trace_views"`
}

func (m *Metrics) GetStats() MetricsResponse {
	resp := MetricsResponse{
		PagesRendered:      m.pagesRendered.Load(),
		RenderFailures:     m.renderFailures.Load(),
		Activations:        m.activations.Load(),
		ActivationFailures: m.activationFailures.Load(),
		RateLimited:        m.rateLimited.Load(),
		TracesStored:       m.tracesStored.Load(),
		TraceViews:         make(map[string]int64),
	}
	m.traceViews.Range(func(key, value any) bool {
		resp.TraceViews[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return resp
}

// WritePrometheus writes the counters in Prometheus text format
func (m *Metrics) WritePrometheus(w io.Writer) {
	stats := m.GetStats()
	counters := []struct {
		name, help string
		value      int64
	}{
		{"tracepage_pages_rendered_total", "Total number of diagnostic pages rendered", stats.PagesRendered},
		{"tracepage_render_failures_total", "Total number of pages that failed to render", stats.RenderFailures},
		{"tracepage_activations_total", "Total number of successful activations", stats.Activations},
		{"tracepage_activation_failures_total", "Total number of failed activations", stats.ActivationFailures},
		{"tracepage_rate_limited_total", "Total number of rate limited activation requests", stats.RateLimited},
		{"tracepage_traces_stored_total", "Total number of traces stored", stats.TracesStored},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n\n", c.name, c.value)
	}

	ids := make([]string, 0, len(stats.TraceViews))
	for id := range stats.TraceViews {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "# HELP tracepage_trace_views_total Page views per stored trace\n")
	fmt.Fprintf(w, "# TYPE tracepage_trace_views_total counter\n")
	for _, id := range ids {
		fmt.Fprintf(w, "tracepage_trace_views_total{trace=\"%s\"} %d\n", id, stats.TraceViews[id])
	}
}
