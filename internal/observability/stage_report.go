package observability

import (
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// StageSlot describes one pipeline stage: its name, the job progress reported
// on entry and the p95 wall time it is expected to stay under.
type StageSlot struct {
	Name      string
	Progress  int
	TargetP95 time.Duration
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Progress    int     `json:"progress"`
	Runs        uint64  `json:"runs"`
	Failures    int     `json:"failures"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	Stages       []StageStats `json:"stages"`
	Outcomes     []Indicator  `json:"outcomes,omitempty"`
	FailureCodes []Indicator  `json:"failure_codes,omitempty"`
}

// StageSnapshot reads the stage histograms and failure counters back out of
// the Prometheus collectors. Described stages come first in pipeline order,
// even before they have run; any other observed stage follows by name.
func (m *Metrics) StageSnapshot() StageSnapshot {
	snap := StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	slots := append([]StageSlot(nil), m.slots...)
	m.mu.RUnlock()

	histograms := make(map[string]*dto.Histogram)
	for _, d := range collect(m.StageDuration) {
		histograms[labelValue(d, "stage")] = d.GetHistogram()
	}
	failures := make(map[string]int)
	codes := make(map[string]int)
	for _, d := range collect(m.StageFailures) {
		n := int(d.GetCounter().GetValue())
		failures[labelValue(d, "stage")] += n
		codes[labelValue(d, "code")] += n
	}
	outcomes := make(map[string]int)
	for _, d := range collect(m.JobEvents) {
		outcomes[labelValue(d, "event")] += int(d.GetCounter().GetValue())
	}

	known := make(map[string]bool, len(slots))
	for _, slot := range slots {
		known[slot.Name] = true
		snap.Stages = append(snap.Stages, stageStats(slot, histograms[slot.Name], failures[slot.Name]))
	}
	var extra []string
	for name := range histograms {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	for name := range failures {
		if !known[name] && histograms[name] == nil {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		snap.Stages = append(snap.Stages, stageStats(StageSlot{Name: name}, histograms[name], failures[name]))
	}

	snap.Outcomes = indicators(outcomes)
	snap.FailureCodes = indicators(codes)
	return snap
}

func stageStats(slot StageSlot, h *dto.Histogram, failures int) StageStats {
	s := StageStats{
		Stage:       slot.Name,
		Progress:    slot.Progress,
		Failures:    failures,
		TargetP95MS: float64(slot.TargetP95.Milliseconds()),
	}
	if h == nil || h.GetSampleCount() == 0 {
		return s
	}
	s.Runs = h.GetSampleCount()
	s.AvgMS = round2(h.GetSampleSum() / float64(s.Runs) * 1000)
	s.P50MS = round2(bucketQuantile(0.50, h) * 1000)
	s.P95MS = round2(bucketQuantile(0.95, h) * 1000)
	s.OverBudget = s.TargetP95MS > 0 && s.P95MS > s.TargetP95MS
	return s
}

// bucketQuantile estimates the q-quantile in seconds by linear interpolation
// inside the bucket holding the target rank. Ranks past the last finite
// bucket report that bucket's upper bound.
func bucketQuantile(q float64, h *dto.Histogram) float64 {
	count := float64(h.GetSampleCount())
	if count == 0 {
		return 0
	}
	rank := q * count
	lower, below := 0.0, 0.0
	for _, b := range h.GetBucket() {
		upper := b.GetUpperBound()
		cum := float64(b.GetCumulativeCount())
		if math.IsInf(upper, +1) {
			break
		}
		if cum >= rank {
			inBucket := cum - below
			if inBucket <= 0 {
				return upper
			}
			return lower + (upper-lower)*(rank-below)/inBucket
		}
		lower, below = upper, cum
	}
	return lower
}

func collect(c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	var out []*dto.Metric
	for metric := range ch {
		var d dto.Metric
		if err := metric.Write(&d); err == nil {
			out = append(out, &d)
		}
	}
	return out
}

func labelValue(d *dto.Metric, name string) string {
	for _, lp := range d.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func indicators(counts map[string]int) []Indicator {
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Indicator, 0, len(names))
	for _, name := range names {
		out = append(out, Indicator{Name: name, Count: counts[name]})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
