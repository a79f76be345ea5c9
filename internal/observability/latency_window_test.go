package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageSendText, 100)
	w.Observe(StageSendText, 200)
	w.Observe(StageSendText, 300)
	w.ObserveIndicator("provider_disconnect")
	w.ObserveIndicator("provider_disconnect")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageSendText {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageSendText)
	}
	if s.Samples != 3 || s.LastMS != 300 || s.P50MS != 200 {
		t.Fatalf("stats = %+v", s)
	}
	if s.P95MS <= 200 || s.P95MS > 300 {
		t.Fatalf("P95MS = %.2f, want (200,300]", s.P95MS)
	}
	if s.TargetP95MS != 400 {
		t.Fatalf("TargetP95MS = %.2f, want 400", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestLatencyWindowWrapsRing(t *testing.T) {
	w := newLatencyWindow(4)
	for i := 1; i <= 6; i++ {
		w.Observe(StageQueueWait, float64(i*10))
	}
	snap := w.Snapshot()
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	// Only 30,40,50,60 remain.
	if s.AvgMS != 45 {
		t.Fatalf("AvgMS = %.2f, want 45", s.AvgMS)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSend(StageSendText, 0)
	m.ObserveFlush(3, 0)
	m.ObserveIndicator("x")
	if got := len(m.LatencySnapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) = %d, want 0", got)
	}
}
