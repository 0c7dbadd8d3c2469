// Package metrics collects dispatch counters and latencies and renders them in
// the Prometheus text exposition format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector served by "jarvis serve".
var Collector = NewMetricsCollector()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// sample is one labelled series inside a family.
type sample interface {
	write(w *bufio.Writer, name, labels string)
}

// family groups the series that share a metric name.
type family struct {
	help   string
	kind   kind
	series map[string]sample // labels -> series
}

// MetricsCollector holds metric families keyed by name.
type MetricsCollector struct {
	mu       sync.Mutex
	families map[string]*family
	started  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{families: make(map[string]*family), started: time.Now()}
}

// Uptime is the time since the collector was created.
func (c *MetricsCollector) Uptime() time.Duration { return time.Since(c.started) }

// lookup returns the series for name and labels, creating it with mk on first
// use. Registering one name under two kinds panics.
func (c *MetricsCollector) lookup(name, help string, k kind, labels string, mk func() sample) sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &family{help: help, kind: k, series: make(map[string]sample)}
		c.families[name] = f
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s and %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(n int64)  { c.n.Add(n) }
func (c *Counter) Value() int64 { return c.n.Load() }

func (c *Counter) write(w *bufio.Writer, name, labels string) {
	fmt.Fprintf(w, "%s %d\n", series(name, labels), c.Value())
}

// Gauge holds a value that moves both ways.
type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

func (g *Gauge) write(w *bufio.Writer, name, labels string) {
	fmt.Fprintf(w, "%s %d\n", series(name, labels), g.Value())
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64 // counts[i] observations <= bounds[i]
	total  int64
	sum    float64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(w *bufio.Writer, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bucketLabels := func(le string) string {
		l := Label("le", le)
		if labels != "" {
			l = labels + "," + l
		}
		return l
	}
	for i, le := range h.bounds {
		if math.IsInf(le, 1) {
			continue
		}
		fmt.Fprintf(w, "%s %d\n", series(name+"_bucket", bucketLabels(strconv.FormatFloat(le, 'g', -1, 64))), h.counts[i])
	}
	fmt.Fprintf(w, "%s %d\n", series(name+"_bucket", bucketLabels("+Inf")), h.total)
	fmt.Fprintf(w, "%s %d\n", series(name+"_count", labels), h.total)
	fmt.Fprintf(w, "%s %s\n", series(name+"_sum", labels), strconv.FormatFloat(h.sum, 'f', -1, 64))
}

// Counter returns the counter for name and labels, creating it on first use.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	return c.lookup(name, help, kindCounter, labels, func() sample { return new(Counter) }).(*Counter)
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	return c.lookup(name, help, kindGauge, labels, func() sample { return new(Gauge) }).(*Gauge)
}

// Histogram returns the histogram for name and labels. buckets only matter on
// first use.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return c.lookup(name, help, kindHistogram, labels, func() sample {
		bounds := slices.Clone(buckets)
		sort.Float64s(bounds)
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// Handler serves the collector in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = c.WriteTo(w)
	}
}

// WriteTo renders every family sorted by name, and each family's series
// sorted by labels.
func (c *MetricsCollector) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: out}
	w := bufio.NewWriter(cw)

	fmt.Fprintf(w, "# HELP jarvis_uptime_seconds Seconds since the process started\n")
	fmt.Fprintf(w, "# TYPE jarvis_uptime_seconds gauge\n")
	fmt.Fprintf(w, "jarvis_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.Lock()
	names := make([]string, 0, len(c.families))
	for name := range c.families {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := c.families[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, f.help, name, f.kind)
		labelSets := make([]string, 0, len(f.series))
		for l := range f.series {
			labelSets = append(labelSets, l)
		}
		sort.Strings(labelSets)
		for _, l := range labelSets {
			f.series[l].write(w, name, l)
		}
	}
	c.mu.Unlock()

	err := w.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Label formats one Prometheus label pair.
func Label(name, value string) string {
	return name + `="` + labelEscaper.Replace(value) + `"`
}

// DispatchTotal counts dispatches ending in status.
func (c *MetricsCollector) DispatchTotal(status string) *Counter {
	return c.Counter("jarvis_dispatch_total", "Capability dispatches by result status", Label("status", status))
}

// DispatchLatency times the handler of one capability.
func (c *MetricsCollector) DispatchLatency(capability string) *Histogram {
	return c.Histogram("jarvis_dispatch_latency_seconds", "Capability handler latency in seconds",
		Label("capability", capability), []float64{0.05, 0.1, 0.5, 1, 5, 10, 30})
}

// MacroRuns counts macro runs ending in outcome.
func (c *MetricsCollector) MacroRuns(outcome string) *Counter {
	return c.Counter("jarvis_macro_runs_total", "Macro runs by outcome", Label("outcome", outcome))
}

var (
	AuthorizationFlows = Collector.Counter("jarvis_authorization_flows_total", "Interactive authorization flows started", "")
	TokenRefreshes     = Collector.Counter("jarvis_token_refreshes_total", "Silent token refreshes", "")
	ChannelMessages    = Collector.Counter("jarvis_channel_messages_total", "Text intents received from channels", "")
	ActiveChannels     = Collector.Gauge("jarvis_active_channels", "Text channels currently running", "")
)
