package observability

import (
	"fmt"
	"testing"
	"time"
)

var testSlots = []StageSlot{
	{Name: "uploading", Progress: 10, TargetP95: 2 * time.Second},
	{Name: "training", Progress: 50, TargetP95: 100 * time.Millisecond},
	{Name: "validation", Progress: 80},
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m := NewMetrics(fmt.Sprintf("test_metrics_%d", time.Now().UnixNano()))
	m.DescribeStages(testSlots)
	return m
}

func TestStageSnapshotFollowsPipelineOrder(t *testing.T) {
	m := newTestMetrics(t)
	for i := 0; i < 3; i++ {
		m.ObserveStage("training", 200*time.Millisecond)
	}
	m.ObserveStage("uploading", 20*time.Millisecond)
	m.ObserveStage("mystery", time.Second)

	snap := m.StageSnapshot()
	var names []string
	for _, s := range snap.Stages {
		names = append(names, s.Stage)
	}
	want := []string{"uploading", "training", "validation", "mystery"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("stages = %v, want %v", names, want)
	}

	training := snap.Stages[1]
	if training.Progress != 50 || training.Runs != 3 {
		t.Fatalf("training = %+v, want progress 50 and 3 runs", training)
	}
	if training.AvgMS != 200 {
		t.Fatalf("AvgMS = %.2f, want 200", training.AvgMS)
	}
	// All three runs land in the (100ms, 250ms] bucket.
	if training.P50MS <= 100 || training.P50MS > 250 || training.P95MS < training.P50MS || training.P95MS > 250 {
		t.Fatalf("P50MS = %.2f P95MS = %.2f, want within (100,250]", training.P50MS, training.P95MS)
	}
	if !training.OverBudget || training.TargetP95MS != 100 {
		t.Fatalf("training budget = %.0f over = %v, want over a 100ms budget", training.TargetP95MS, training.OverBudget)
	}
	if snap.Stages[0].OverBudget {
		t.Fatalf("uploading should be within its budget: %+v", snap.Stages[0])
	}

	validation := snap.Stages[2]
	if validation.Runs != 0 || validation.P95MS != 0 || validation.Progress != 80 {
		t.Fatalf("validation = %+v, want an empty slot", validation)
	}
}

func TestStageSnapshotCountsFailuresAndOutcomes(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveFailure("validation", "quota_exhausted")
	m.ObserveFailure("validation", "quota_exhausted")
	m.ObserveFailure("training", "conversion")
	m.ObserveOutcome("completed")
	m.ObserveOutcome("failed")
	m.ObserveOutcome("failed")

	snap := m.StageSnapshot()
	if got := snap.Stages[2].Failures; got != 2 {
		t.Fatalf("validation failures = %d, want 2", got)
	}
	if got := snap.Stages[1].Failures; got != 1 {
		t.Fatalf("training failures = %d, want 1", got)
	}
	wantCodes := []Indicator{{Name: "conversion", Count: 1}, {Name: "quota_exhausted", Count: 2}}
	if fmt.Sprint(snap.FailureCodes) != fmt.Sprint(wantCodes) {
		t.Fatalf("FailureCodes = %+v, want %+v", snap.FailureCodes, wantCodes)
	}
	wantOutcomes := []Indicator{{Name: "completed", Count: 1}, {Name: "failed", Count: 2}}
	if fmt.Sprint(snap.Outcomes) != fmt.Sprint(wantOutcomes) {
		t.Fatalf("Outcomes = %+v, want %+v", snap.Outcomes, wantOutcomes)
	}
}

func TestStageSnapshotNilMetrics(t *testing.T) {
	var m *Metrics
	if snap := m.StageSnapshot(); snap.Stages == nil || len(snap.Stages) != 0 {
		t.Fatalf("StageSnapshot() on nil = %+v", snap)
	}
}
