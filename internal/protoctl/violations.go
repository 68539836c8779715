package protoctl

import (
	"fmt"
	"os"

	"github.com/skirmish-net/skirmish/internal/storage"
)

type ViolationQuery struct {
	DBPath string
	PeerID string
	Kind   string
	Limit  int
}

// QueryViolations reads the violation audit written by the gateway. Exactly
// one of PeerID or Kind selects the rows.
func QueryViolations(q ViolationQuery) ([]storage.Violation, error) {
	if q.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if (q.PeerID == "") == (q.Kind == "") {
		return nil, fmt.Errorf("exactly one of peer or kind is required")
	}
	if _, err := os.Stat(q.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	store, err := storage.Open(q.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	log := storage.NewViolationLog(store.DB(), nil)
	if q.PeerID != "" {
		return log.QueryByPeer(q.PeerID, q.Limit)
	}
	return log.QueryByKind(q.Kind, q.Limit)
}
