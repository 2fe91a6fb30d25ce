// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package sink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ostafen/fido/internal/env"
)

const matchTypeError = "error"

// Metrics exposes run counters as Prometheus collectors on a private
// registry. When path is set, Close writes them as a node-exporter
// textfile.
type Metrics struct {
	Objects  *prometheus.CounterVec
	Matches  *prometheus.CounterVec
	Bytes    prometheus.Counter
	Duration prometheus.Histogram

	registry *prometheus.Registry
	path     string
}

func NewMetrics(path string) *Metrics {
	m := &Metrics{
		Objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: env.AppName,
			Name:      "objects_total",
			Help:      "Objects identified, by match type.",
		}, []string{"match_type"}),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: env.AppName,
			Name:      "matches_total",
			Help:      "Reported matches, by PUID.",
		}, []string{"puid"}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: env.AppName,
			Name:      "read_bytes_total",
			Help:      "Bytes read from identified objects.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: env.AppName,
			Name:      "identify_duration_seconds",
			Help:      "Time spent identifying a single object.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		registry: prometheus.NewRegistry(),
		path:     path,
	}

	m.registry.MustRegister(m.Collectors()...)
	return m
}

// Collectors returns all metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Objects,
		m.Matches,
		m.Bytes,
		m.Duration,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Report(r Result) error {
	if r.Err != nil {
		m.Objects.WithLabelValues(matchTypeError).Inc()
		return nil
	}

	m.Objects.WithLabelValues(string(r.Type)).Inc()
	for _, mt := range r.Matches {
		m.Matches.WithLabelValues(mt.Format.PUID).Inc()
	}
	if r.Size > 0 {
		m.Bytes.Add(float64(r.Size))
	}
	m.Duration.Observe(r.Elapsed.Seconds())
	return nil
}

func (m *Metrics) Close() error {
	if m.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
