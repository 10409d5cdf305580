// Package ss58 encodes and decodes Substrate SS58 addresses.
//
// An address is base58(prefix || payload || checksum) where the checksum is
// the leading bytes of blake2b-512("SS58PRE" || prefix || payload).
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SubstratePrefix is the generic Substrate network identifier used by the
// XY chain dev runtime.
const SubstratePrefix uint16 = 42

// MaxPrefix is the largest network prefix SS58 can encode.
const MaxPrefix uint16 = 16383

var checksumPreimage = []byte("SS58PRE")

var (
	ErrBadChecksum = errors.New("ss58: checksum mismatch")
	ErrBadLength   = errors.New("ss58: unsupported payload length")
	ErrBadPrefix   = errors.New("ss58: invalid network prefix")
)

// Encode returns the SS58 address of pub under the given network prefix.
func Encode(pub []byte, prefix uint16) (string, error) {
	csLen, err := checksumLength(len(pub))
	if err != nil {
		return "", err
	}
	pre, err := encodePrefix(prefix)
	if err != nil {
		return "", err
	}

	body := append(pre, pub...)
	sum, err := checksum(body)
	if err != nil {
		return "", err
	}
	return base58.Encode(append(body, sum[:csLen]...)), nil
}

// Decode parses an SS58 address, verifies its checksum and returns the raw
// payload together with its network prefix.
func Decode(addr string) ([]byte, uint16, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("ss58: base58: %w", err)
	}
	if len(raw) < 2 {
		return nil, 0, ErrBadLength
	}

	var (
		prefix    uint16
		prefixLen int
	)
	switch {
	case raw[0] < 64:
		prefix, prefixLen = uint16(raw[0]), 1
	case raw[0] < 128:
		if len(raw) < 3 {
			return nil, 0, ErrBadLength
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return nil, 0, ErrBadPrefix
	}

	rest := len(raw) - prefixLen
	var csLen int
	for _, n := range []int{32, 33, 1, 2, 4, 8} {
		l, _ := checksumLength(n)
		if n+l == rest {
			csLen = l
			break
		}
	}
	if csLen == 0 {
		return nil, 0, ErrBadLength
	}

	body := raw[:len(raw)-csLen]
	sum, err := checksum(body)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(sum[:csLen], raw[len(raw)-csLen:]) {
		return nil, 0, ErrBadChecksum
	}
	return append([]byte(nil), body[prefixLen:]...), prefix, nil
}

func checksumLength(payloadLen int) (int, error) {
	switch payloadLen {
	case 1, 2, 4, 8:
		return 1, nil
	case 32, 33:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %d bytes", ErrBadLength, payloadLen)
	}
}

func encodePrefix(prefix uint16) ([]byte, error) {
	switch {
	case prefix < 64:
		return []byte{byte(prefix)}, nil
	case prefix <= MaxPrefix:
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte((prefix&0x0003)<<6)
		return []byte{first, second}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadPrefix, prefix)
	}
}

func checksum(body []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write(checksumPreimage)
	h.Write(body)
	return h.Sum(nil), nil
}
