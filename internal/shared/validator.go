package shared

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/skirmish-net/skirmish/internal/schema"
	"go.uber.org/zap"
)

// Validator decodes inbound envelopes. It holds no mutable state: the schema
// artifact is fixed at construction, so one Validator may be shared by any
// number of goroutines.
type Validator struct {
	artifact *schema.Artifact
	drift    []string
}

// NewValidator returns a validator bound to artifact, which may be nil when no
// schema document was loaded. Differences between the artifact and the
// compiled message tables are logged once here.
func NewValidator(artifact *schema.Artifact, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	drift := CheckDrift(artifact)
	for _, d := range drift {
		logger.Warn("schema drift", zap.String("path", artifact.Path()), zap.String("detail", d))
	}
	return &Validator{artifact: artifact, drift: drift}
}

func (v *Validator) Validate(data []byte) (*Envelope, error) {
	return Decode(data)
}

func (v *Validator) Artifact() *schema.Artifact {
	return v.artifact
}

// Drift returns the differences found between the artifact and this build.
func (v *Validator) Drift() []string {
	out := make([]string, len(v.drift))
	copy(out, v.drift)
	return out
}

// CheckDrift compares a schema artifact against the compiled enumerations
// and versions. A nil artifact has no drift.
func CheckDrift(a *schema.Artifact) []string {
	if !a.Loaded() {
		return nil
	}
	var drift []string

	declared := a.MessageIDs()
	for _, t := range MessageTypes() {
		id, ok := declared[t.String()]
		switch {
		case !ok:
			drift = append(drift, fmt.Sprintf("message %s (id %d) missing from schema", t, int(t)))
		case id != int(t):
			drift = append(drift, fmt.Sprintf("message %s has id %d in schema, %d compiled", t, id, int(t)))
		}
		delete(declared, t.String())
	}
	for _, name := range sortedKeys(declared) {
		drift = append(drift, fmt.Sprintf("message %s (id %d) in schema has no validator", name, declared[name]))
	}

	codes := a.ErrorCodes()
	if len(codes) > 0 {
		for _, c := range ErrorCodes() {
			code, ok := codes[c.String()]
			switch {
			case !ok:
				drift = append(drift, fmt.Sprintf("error code %s missing from schema", c))
			case code != int(c):
				drift = append(drift, fmt.Sprintf("error code %s is %d in schema, %d compiled", c, code, int(c)))
			}
			delete(codes, c.String())
		}
		for _, name := range sortedKeys(codes) {
			drift = append(drift, fmt.Sprintf("error code %s (%d) in schema is not compiled", name, codes[name]))
		}
	}

	if pv := a.ProtocolVersion(); pv != "" {
		if f, err := strconv.ParseFloat(pv, 64); err != nil || f != ProtocolVersion {
			drift = append(drift, fmt.Sprintf("schema protocol_version %s, compiled %s", pv, FormatProtocolVersion(ProtocolVersion)))
		}
	}
	if sv := a.SchemaVersion(); sv != "" && sv != SchemaVersion {
		drift = append(drift, fmt.Sprintf("schema schema_version %s, compiled %s", sv, SchemaVersion))
	}
	return drift
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
