package gateway

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSeqWindow = 256

type seqAnomaly int

const (
	seqInOrder seqAnomaly = iota
	seqGap
	seqDuplicate
	seqRegression
)

func (a seqAnomaly) String() string {
	switch a {
	case seqInOrder:
		return "in_order"
	case seqGap:
		return "gap"
	case seqDuplicate:
		return "duplicate"
	case seqRegression:
		return "regression"
	}
	return "unknown"
}

// seqTracker classifies a peer's sequence numbers. It never rejects a
// message; anomalies are reported so the caller can log and count them.
// Not safe for concurrent use: each peer's read loop owns one.
type seqTracker struct {
	started bool
	last    int64
	recent  *lru.Cache[int64, struct{}]
}

func newSeqTracker(window int) (*seqTracker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("seq window must be positive")
	}
	recent, err := lru.New[int64, struct{}](window)
	if err != nil {
		return nil, err
	}
	return &seqTracker{recent: recent}, nil
}

// observe records seq and reports how it relates to the highest seq seen so
// far. expected is the value an in-order message would have carried.
func (s *seqTracker) observe(seq int64) (anomaly seqAnomaly, expected int64) {
	if !s.started {
		s.started = true
		s.last = seq
		s.recent.Add(seq, struct{}{})
		return seqInOrder, seq
	}

	expected = s.last + 1
	switch {
	case s.recent.Contains(seq):
		return seqDuplicate, expected
	case seq == expected:
		anomaly = seqInOrder
		s.last = seq
	case seq > expected:
		anomaly = seqGap
		s.last = seq
	default:
		anomaly = seqRegression
	}
	s.recent.Add(seq, struct{}{})
	return anomaly, expected
}
