// Package protoctl implements the protoctl commands: validating captured
// envelopes, inspecting schema documents and reading the violation audit.
package protoctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/skirmish-net/skirmish/internal/shared"
)

// maxLineBytes bounds a single envelope line.
const maxLineBytes = 1 << 20

type Result struct {
	Line      int             `json:"line"`
	Valid     bool            `json:"valid"`
	Type      string          `json:"type,omitempty"`
	Seq       *int64          `json:"seq,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Field     string          `json:"field,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Canonical json.RawMessage `json:"canonical,omitempty"`
}

// ValidateLines validates one envelope per line. Blank lines and lines
// starting with '#' are skipped.
func ValidateLines(r io.Reader, v *shared.Validator) ([]Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var results []Result
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		results = append(results, validateLine(v, line, []byte(text)))
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("failed to read input at line %d: %w", line+1, err)
	}
	return results, nil
}

func validateLine(v *shared.Validator, line int, data []byte) Result {
	res := Result{Line: line}

	env, err := v.Validate(data)
	if err != nil {
		res.Error = err.Error()
		var ve *shared.ValidationError
		if errors.As(err, &ve) {
			res.Kind = ve.Kind.String()
			res.Field = ve.Field
			res.Code = ve.Code().String()
			if ve.Kind == shared.KindPayloadValidationError {
				res.Type = ve.Type.String()
			}
		}
		return res
	}

	seq := env.Seq()
	res.Valid = true
	res.Type = env.Type().String()
	res.Seq = &seq
	if canonical, err := shared.Marshal(env); err == nil {
		res.Canonical = canonical
	}
	return res
}

// Summarize counts valid and invalid results.
func Summarize(results []Result) (valid, invalid int) {
	for _, r := range results {
		if r.Valid {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid
}

// Encode builds a canonical envelope from a message type name (or numeric
// id), a sequence number and payload text.
func Encode(typeName string, seq int64, payload string) ([]byte, error) {
	t, err := resolveMessageType(typeName)
	if err != nil {
		return nil, err
	}
	value, err := shared.Parse([]byte(payload))
	if err != nil {
		return nil, err
	}
	env, err := shared.NewEnvelope(t, seq, value)
	if err != nil {
		return nil, err
	}
	return shared.Marshal(env)
}

func resolveMessageType(s string) (shared.MessageType, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		t, ok := shared.MessageTypeFromID(id)
		if !ok {
			return 0, fmt.Errorf("unknown message id %d", id)
		}
		return t, nil
	}
	return shared.ParseMessageType(strings.ToUpper(s))
}
