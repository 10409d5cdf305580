package xychain

import (
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// devPhrase is the mnemonic dev chains derive //Alice and friends from.
const devPhrase = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

// DevNames are the well-known dev accounts, in genesis order. Bob is the
// auditor on dev chains.
var DevNames = []string{"Alice", "Bob", "Charlie", "Dave", "Eve", "Ferdie"}

// Identity is an sr25519 signer.
type Identity struct {
	Name    string
	pair    signature.KeyringPair
	account AccountID
	prefix  uint16
}

// NewIdentity derives a key pair from a secret URI: a mnemonic, a 0x seed,
// or either followed by //hard and /soft junctions. A URI that starts with a
// junction is taken relative to the dev phrase.
func NewIdentity(name, uri string, prefix uint16) (*Identity, error) {
	if strings.HasPrefix(uri, "/") {
		uri = devPhrase + uri
	}
	pair, err := signature.KeyringPairFromSecret(uri, prefix)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", name, err)
	}
	account, err := NewAccountID(pair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", name, err)
	}
	return &Identity{Name: name, pair: pair, account: account, prefix: prefix}, nil
}

// DevIdentity returns one of the well-known dev accounts by name.
func DevIdentity(name string, prefix uint16) (*Identity, error) {
	for _, n := range DevNames {
		if strings.EqualFold(n, name) {
			return NewIdentity(n, "//"+n, prefix)
		}
	}
	return nil, fmt.Errorf("unknown dev account %q", name)
}

// AccountID returns the public key.
func (i *Identity) AccountID() AccountID { return i.account }

// PublicKey returns a copy of the raw public key.
func (i *Identity) PublicKey() []byte { return append([]byte(nil), i.account[:]...) }

// Address is the SS58 address of the public key.
func (i *Identity) Address() string { return i.account.Address(i.prefix) }

func (i *Identity) String() string { return i.Name + " (" + i.Address() + ")" }
