package shared

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrProtocolVersionMismatch = errors.New("protocol version mismatch")

// CheckProtocolVersion enforces the strict protocol version rule: the value a
// peer announces must equal want. Numbers and numeric strings are accepted,
// so 0.02, 0.020 and "0.020" all match 0.020.
func CheckProtocolVersion(announced Value, want float64) error {
	var got float64
	switch announced.Kind() {
	case KindNumber:
		got, _ = announced.AsNumber()
	case KindString:
		s, _ := announced.AsString()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%w: %s is not a version number", ErrProtocolVersionMismatch, announced.Literal())
		}
		got = f
	default:
		return fmt.Errorf("%w: %w", ErrProtocolVersionMismatch, announced.mismatch(KindNumber))
	}
	if got != want {
		return fmt.Errorf("%w: got %s, expected %s", ErrProtocolVersionMismatch, announced.Literal(), FormatProtocolVersion(want))
	}
	return nil
}

// FormatProtocolVersion renders a protocol version with three decimals, the
// way versions are written in the message tables (0.020).
func FormatProtocolVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
