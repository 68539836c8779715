package gateway

import "testing"

func TestSeqTracker(t *testing.T) {
	tracker, err := newSeqTracker(4)
	if err != nil {
		t.Fatalf("newSeqTracker failed: %v", err)
	}

	steps := []struct {
		seq      int64
		want     seqAnomaly
		expected int64
	}{
		{10, seqInOrder, 10},
		{11, seqInOrder, 11},
		{11, seqDuplicate, 12},
		{15, seqGap, 12},
		{16, seqInOrder, 16},
		{13, seqRegression, 17},
		{13, seqDuplicate, 17},
		{17, seqInOrder, 17},
	}
	for i, step := range steps {
		got, expected := tracker.observe(step.seq)
		if got != step.want || expected != step.expected {
			t.Errorf("step %d seq=%d: got (%s, %d), want (%s, %d)", i, step.seq, got, expected, step.want, step.expected)
		}
	}
}

func TestSeqTrackerWindowEviction(t *testing.T) {
	tracker, _ := newSeqTracker(2)
	for _, seq := range []int64{0, 1, 2, 3} {
		tracker.observe(seq)
	}
	// 0 fell out of the window, so it reads as a regression rather than a replay.
	if got, _ := tracker.observe(0); got != seqRegression {
		t.Errorf("expected regression after eviction, got %s", got)
	}
}

func TestSeqTrackerRejectsEmptyWindow(t *testing.T) {
	if _, err := newSeqTracker(0); err == nil {
		t.Error("expected error for zero window")
	}
}
