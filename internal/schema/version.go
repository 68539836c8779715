package schema

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionMatch describes how a peer's schema version relates to ours.
type VersionMatch string

const (
	VersionExact      VersionMatch = "exact"
	VersionCompatible VersionMatch = "compatible"
	VersionMismatch   VersionMatch = "mismatch"
)

// CompareSchemaVersion compares two schema versions. Versions sharing a major
// (or, below 1.0, a minor) component are compatible. Schema versions are
// permissive, so callers log a mismatch rather than refuse the peer.
func CompareSchemaVersion(local, remote string) (VersionMatch, error) {
	lv, err := semver.NewVersion(normalizeVersion(local))
	if err != nil {
		return VersionMismatch, fmt.Errorf("invalid local schema version %q: %w", local, err)
	}
	rv, err := semver.NewVersion(normalizeVersion(remote))
	if err != nil {
		return VersionMismatch, fmt.Errorf("invalid remote schema version %q: %w", remote, err)
	}

	if lv.Equal(rv) {
		return VersionExact, nil
	}

	c, err := semver.NewConstraint("^" + lv.String())
	if err != nil {
		return VersionMismatch, err
	}
	// ^ ranges are one-directional; check both sides so an older peer on the
	// same line also counts as compatible.
	back, err := semver.NewConstraint("^" + rv.String())
	if err != nil {
		return VersionMismatch, err
	}
	if c.Check(rv) || back.Check(lv) {
		return VersionCompatible, nil
	}
	return VersionMismatch, nil
}

// normalizeVersion ensures version has 3 parts (X.Y.Z).
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.Split(v, ".")
	switch len(parts) {
	case 1:
		return v + ".0.0"
	case 2:
		return v + ".0"
	default:
		return v
	}
}
