// Package schema loads the message schema document shipped alongside the
// server. The document is read once at startup and never changes afterwards;
// the hand-written validators in package shared remain authoritative, the
// artifact is consulted for version reporting and drift checks only.
package schema

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

// Artifact is an immutable, parsed schema document. A nil *Artifact means
// "not loaded" and every accessor is safe to call on it.
type Artifact struct {
	path            string
	raw             string
	protocolVersion string
	schemaVersion   string
	messageIDs      map[string]int
	errorCodes      map[string]int
	loadDuration    time.Duration
}

// Load reads the artifact at path. Any failure is logged as a warning and
// reported as a nil artifact; startup is expected to continue either way.
func Load(path string, logger *zap.Logger) *Artifact {
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to load schema, continuing without it",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}

	a, err := Parse(path, data)
	if err != nil {
		logger.Warn("failed to initialize schema, continuing without it",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	a.loadDuration = time.Since(start)

	logger.Info("schema loaded",
		zap.String("path", path),
		zap.String("schema_version", a.schemaVersion),
		zap.String("protocol_version", a.protocolVersion),
		zap.Int("message_types", len(a.messageIDs)),
		zap.Int64("duration_ms", a.loadDuration.Milliseconds()),
	)
	return a
}

// Parse builds an artifact from document text. path is informational.
func Parse(path string, data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("schema %s is empty", path)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("schema %s is not valid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("schema %s: root must be an object", path)
	}

	a := &Artifact{
		path:       path,
		raw:        string(pretty.Ugly(data)),
		messageIDs: make(map[string]int),
		errorCodes: make(map[string]int),
	}
	// protocol_version is written as a float in some generators and a string
	// in others; keep the literal either way.
	if v := root.Get("protocol_version"); v.Exists() {
		if v.Type == gjson.String {
			a.protocolVersion = v.Str
		} else {
			a.protocolVersion = v.Raw
		}
	}
	a.schemaVersion = root.Get("schema_version").String()

	var perr error
	root.Get("messages").ForEach(func(name, entry gjson.Result) bool {
		id := entry
		if entry.IsObject() {
			id = entry.Get("id")
		}
		if id.Type != gjson.Number {
			perr = fmt.Errorf("schema %s: messages.%s has no numeric id", path, name.Str)
			return false
		}
		a.messageIDs[name.Str] = int(id.Int())
		return true
	})
	if perr != nil {
		return nil, perr
	}

	root.Get("error_codes").ForEach(func(name, code gjson.Result) bool {
		if code.Type != gjson.Number {
			perr = fmt.Errorf("schema %s: error_codes.%s is not numeric", path, name.Str)
			return false
		}
		a.errorCodes[name.Str] = int(code.Int())
		return true
	})
	if perr != nil {
		return nil, perr
	}

	return a, nil
}

func (a *Artifact) Loaded() bool { return a != nil }

func (a *Artifact) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

func (a *Artifact) ProtocolVersion() string {
	if a == nil {
		return ""
	}
	return a.protocolVersion
}

func (a *Artifact) SchemaVersion() string {
	if a == nil {
		return ""
	}
	return a.schemaVersion
}

func (a *Artifact) LoadDuration() time.Duration {
	if a == nil {
		return 0
	}
	return a.loadDuration
}

// MessageIDs returns a copy of the name -> id table declared by the document.
func (a *Artifact) MessageIDs() map[string]int {
	if a == nil {
		return nil
	}
	return copyTable(a.messageIDs)
}

// ErrorCodes returns a copy of the name -> code table declared by the document.
func (a *Artifact) ErrorCodes() map[string]int {
	if a == nil {
		return nil
	}
	return copyTable(a.errorCodes)
}

// MessageNames returns the declared message names sorted by id.
func (a *Artifact) MessageNames() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.messageIDs))
	for name := range a.messageIDs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return a.messageIDs[names[i]] < a.messageIDs[names[j]]
	})
	return names
}

// Get runs a gjson path query against the document, e.g. "messages.MOVE.payload".
func (a *Artifact) Get(path string) gjson.Result {
	if a == nil {
		return gjson.Result{}
	}
	return gjson.Get(a.raw, path)
}

// Raw returns the compacted document text.
func (a *Artifact) Raw() string {
	if a == nil {
		return ""
	}
	return a.raw
}

func copyTable(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
