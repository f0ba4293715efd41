// Package metrics records pipeline progress as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/yuanying/epubinline/internal/pipeline"
)

const (
	Namespace = "epubinline"

	NameTransitions   = "state_transitions_total"
	NameStageDuration = "stage_duration_seconds"
	NameAssets        = "assets_total"
	NameChapters      = "chapters_total"
	LabelState        = "state"
	LabelStage        = "stage"
	LabelResolved     = "resolved"
	LabelMissing      = "missing"
)

// Collector is a pipeline.Diagnostics backed by its own registry, so
// several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	Transitions   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Assets        *prometheus.CounterVec
	Chapters      *prometheus.CounterVec
}

var _ pipeline.Diagnostics = (*Collector)(nil)

// NewCollector returns a collector with every metric registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:      NameTransitions,
				Help:      "Pipeline state transitions by target state",
				Namespace: Namespace,
			},
			[]string{LabelState},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:      NameStageDuration,
				Help:      "Time spent in each pipeline stage",
				Namespace: Namespace,
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{LabelStage},
		),
		Assets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:      NameAssets,
				Help:      "Manifest images by resolution outcome",
				Namespace: Namespace,
			},
			[]string{LabelResolved},
		),
		Chapters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:      NameChapters,
				Help:      "Composed chapters",
				Namespace: Namespace,
			},
			[]string{LabelMissing},
		),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) StateChanged(from, to pipeline.State) {
	c.Transitions.WithLabelValues(to.String()).Inc()
}

func (c *Collector) StageCompleted(stage pipeline.State, elapsed time.Duration) {
	c.StageDuration.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
}

func (c *Collector) AssetResolved(href string, ok bool) {
	c.Assets.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (c *Collector) ChapterComposed(id string, missing bool) {
	c.Chapters.WithLabelValues(strconv.FormatBool(missing)).Inc()
}

// WriteText writes every metric in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
