package convert

import (
	"encoding/hex"
	"fmt"
)

// DecodeError reports a payload that could not be decoded.
type DecodeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	in := e.Input
	if len(in) > 32 {
		in = in[:32] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("decode %q: %s: %v", in, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %q: %s", in, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BytesToHex encodes b as lowercase hex with a 0x prefix.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes a hex string with or without one 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	raw := s
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Input: s, Reason: "odd length hex string"}
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, &DecodeError{Input: s, Reason: "invalid hex", Err: err}
	}
	return b, nil
}
