package convert

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
)

// Balance is a u128 balance as it travels in custom RPC responses. The node
// may send it as a JSON number, a decimal string or a 0x hex string.
type Balance struct {
	big.Int
}

// NewBalance copies v into a Balance.
func NewBalance(v *big.Int) Balance {
	var b Balance
	if v != nil {
		b.Set(v)
	}
	return b
}

// Big returns a copy of the balance as a *big.Int.
func (b *Balance) Big() *big.Int {
	return new(big.Int).Set(&b.Int)
}

func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Int.String())
}

func (b *Balance) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		b.SetInt64(0)
		return nil
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return &DecodeError{Input: string(data), Reason: "balance", Err: err}
		}
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
		if s == "" {
			s = "0"
		}
	}
	if _, ok := b.SetString(s, base); !ok {
		return &DecodeError{Input: string(data), Reason: "not an integer balance"}
	}
	return nil
}

// Bytes is a Vec<u8> as serialized by the node: either a JSON array of byte
// values or a hex string. It is always encoded back as 0x hex.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(BytesToHex(b))
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return &DecodeError{Input: string(data), Reason: "byte string", Err: err}
		}
		raw, err := HexToBytes(s)
		if err != nil {
			return err
		}
		*b = raw
		return nil
	default:
		var values []uint8
		if err := json.Unmarshal(data, &values); err != nil {
			return &DecodeError{Input: string(data), Reason: "byte array", Err: err}
		}
		*b = values
		return nil
	}
}

// Hex returns the 0x-prefixed hex form.
func (b Bytes) Hex() string { return BytesToHex(b) }
