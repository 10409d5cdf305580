// Package scenario holds the end-to-end scenarios run against a live node and
// the runner that executes them.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/xychain"
)

// Chain is the part of the node handle the scenarios use. *xychain.Conn
// implements it.
type Chain interface {
	NextNftID(ctx context.Context) (uint32, error)
	NextPodID(ctx context.Context) (uint32, error)
	PendingNft(ctx context.Context, id uint32) (*xychain.PendingNft, bool, error)
	Owner(ctx context.Context, id uint32) (xychain.AccountID, bool, error)
	Nft(ctx context.Context, id uint32) (*xychain.StoredNft, bool, error)
	FreeBalance(ctx context.Context, who xychain.AccountID) (*big.Int, error)
	PodFee() (*big.Int, error)
	PendingPods(ctx context.Context, who xychain.AccountID) (*xychain.PendingNftPods, error)
	NftData(ctx context.Context, id uint32) (*xychain.NftData, error)
	SubmitAndWait(ctx context.Context, call xychain.Call, signer *xychain.Identity) (*xychain.Inclusion, error)
	Address(id xychain.AccountID) string
	Close() error
}

// Scenario is one named end-to-end check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

var registry = map[string]Scenario{}

func register(s Scenario) {
	if _, dup := registry[s.Name]; dup {
		panic("scenario: duplicate " + s.Name)
	}
	registry[s.Name] = s
}

// Lookup returns a registered scenario by name.
func Lookup(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names lists the registered scenarios, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Env is what a running scenario gets.
type Env struct {
	Chain     Chain
	Accounts  *Accounts
	Logger    *slog.Logger
	OutputDir string
	ImagePath string
}

// Accounts are the signing identities scenarios refer to by name.
type Accounts struct {
	byName map[string]*xychain.Identity
}

// DevAccounts derives the well-known dev identities.
func DevAccounts(prefix uint16) (*Accounts, error) {
	a := &Accounts{byName: make(map[string]*xychain.Identity, len(xychain.DevNames))}
	for _, name := range xychain.DevNames {
		id, err := xychain.DevIdentity(name, prefix)
		if err != nil {
			return nil, err
		}
		a.byName[name] = id
	}
	return a, nil
}

// Get returns the identity called name. Scenarios only ask for accounts
// that DevAccounts derives, so a miss is a programming error.
func (a *Accounts) Get(name string) *xychain.Identity {
	id, ok := a.byName[name]
	if !ok {
		panic("scenario: no account " + name)
	}
	return id
}

// AssertionFailure is an expected-versus-actual mismatch at a named step.
type AssertionFailure struct {
	Step     string
	Expected any
	Actual   any
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Step, e.Expected, e.Actual)
}

func expectEqual[T comparable](step string, want, got T) error {
	if want != got {
		return &AssertionFailure{Step: step, Expected: want, Actual: got}
	}
	return nil
}

func expectBalance(step string, want, got *big.Int) error {
	if want.Cmp(got) != 0 {
		return &AssertionFailure{Step: step, Expected: "$" + convert.ToDollar(want), Actual: "$" + convert.ToDollar(got)}
	}
	return nil
}

func expectTrue(step string, ok bool) error {
	if !ok {
		return &AssertionFailure{Step: step, Expected: true, Actual: false}
	}
	return nil
}
