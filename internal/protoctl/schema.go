package protoctl

import (
	"fmt"
	"sort"
	"time"

	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"go.uber.org/zap"
)

type MessageEntry struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	CompiledID *int   `json:"compiled_id,omitempty"`
}

type CodeEntry struct {
	Name string `json:"name"`
	Code int    `json:"code"`
}

type SchemaReport struct {
	Path            string         `json:"path"`
	ProtocolVersion string         `json:"protocol_version"`
	SchemaVersion   string         `json:"schema_version"`
	Messages        []MessageEntry `json:"messages"`
	ErrorCodes      []CodeEntry    `json:"error_codes"`
	Drift           []string       `json:"drift"`
	LoadDurationMs  float64        `json:"load_duration_ms"`
}

// InspectSchema loads the schema document at path and compares it with the
// compiled message and error code tables.
func InspectSchema(path string, logger *zap.Logger) (*SchemaReport, error) {
	artifact := schema.Load(path, logger)
	if !artifact.Loaded() {
		return nil, fmt.Errorf("schema %s could not be loaded", path)
	}

	report := &SchemaReport{
		Path:            artifact.Path(),
		ProtocolVersion: artifact.ProtocolVersion(),
		SchemaVersion:   artifact.SchemaVersion(),
		Drift:           shared.CheckDrift(artifact),
		LoadDurationMs:  float64(artifact.LoadDuration()) / float64(time.Millisecond),
	}

	ids := artifact.MessageIDs()
	for _, name := range artifact.MessageNames() {
		entry := MessageEntry{Name: name, ID: ids[name]}
		if t, err := shared.ParseMessageType(name); err == nil {
			compiled := int(t)
			entry.CompiledID = &compiled
		}
		report.Messages = append(report.Messages, entry)
	}

	codes := artifact.ErrorCodes()
	for _, c := range shared.ErrorCodes() {
		if code, ok := codes[c.String()]; ok {
			report.ErrorCodes = append(report.ErrorCodes, CodeEntry{Name: c.String(), Code: code})
			delete(codes, c.String())
		}
	}
	extra := make([]string, 0, len(codes))
	for name := range codes {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		report.ErrorCodes = append(report.ErrorCodes, CodeEntry{Name: name, Code: codes[name]})
	}
	return report, nil
}
