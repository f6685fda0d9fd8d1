package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// family is a labelled series set rendered in Prometheus text format.
type family struct {
	name       string
	help       string
	kind       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func newFamily(name, help, kind string, labels []string) *family {
	return &family{name: name, help: help, kind: kind, labelNames: labels, values: map[string]float64{}}
}

func (f *family) add(v float64, values []string) {
	lbl := labelString(f.labelNames, values)
	f.mu.Lock()
	f.values[lbl] += v
	f.mu.Unlock()
}

func (f *family) set(v float64, values []string) {
	lbl := labelString(f.labelNames, values)
	f.mu.Lock()
	f.values[lbl] = v
	f.mu.Unlock()
}

func (f *family) get(values []string) float64 {
	lbl := labelString(f.labelNames, values)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[lbl]
}

func (f *family) write(w io.Writer) error {
	if err := writeHeader(w, f.name, f.help, f.kind); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, k := range sortedKeys(f.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", f.name, k, f.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ f *family }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{f: newFamily(name, help, "counter", labels)}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	c.f.add(1, values)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	c.f.add(v, values)
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	return c.f.get(values)
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.write(w)
}

type Counter struct{ f *family }

func NewCounter(name, help string) *Counter {
	return &Counter{f: newFamily(name, help, "counter", nil)}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.f.add(1, nil)
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	return c.f.get(nil)
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.write(w)
}

type Gauge struct{ f *family }

func NewGauge(name, help string) *Gauge {
	return &Gauge{f: newFamily(name, help, "gauge", nil)}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.f.set(v, nil)
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.f.add(1, nil)
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.f.add(-1, nil)
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	return g.f.get(nil)
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.write(w)
}

type GaugeVec struct{ f *family }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{f: newFamily(name, help, "gauge", labels)}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	g.f.set(v, values)
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.write(w)
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	counts []uint64 // cumulative per bucket, last slot is +Inf
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets)+1)}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(h.buckets)]++
}

func (h *HistogramVec) Count(values ...string) uint64 {
	if h == nil {
		return 0
	}
	lbl := labelString(h.labelNames, values)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hist, ok := h.values[lbl]; ok {
		return hist.total
	}
	return 0
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(h.buckets)]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, name, help, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	return err
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts[i] = name + "=\"" + escapeLabel(val) + "\""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(v)
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" || !strings.HasSuffix(labels, "}") {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}
