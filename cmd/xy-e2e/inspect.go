package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/report"
	"github.com/xychain/xy-e2e/internal/ss58"
	"github.com/xychain/xy-e2e/internal/xychain"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		stats bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			if stats {
				s, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOut {
					return report.JSON(a.stdout, s)
				}
				return report.NewPrinter(a.stdout).Stats(s)
			}

			results, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, results)
			}
			return report.NewPrinter(a.stdout).History(results)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of results")
	cmd.Flags().BoolVar(&stats, "stats", false, "totals per scenario instead of individual results")
	return cmd
}

type addressInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	Prefix    uint16 `json:"prefix"`
}

func newAddressCmd(a *app) *cobra.Command {
	var prefix int
	cmd := &cobra.Command{
		Use:   "address <hex-pubkey|address|dev-name|secret-uri>",
		Short: "Print the SS58 address of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.cfg.Node.SS58Prefix
			if prefix >= 0 {
				if prefix > int(ss58.MaxPrefix) {
					return fmt.Errorf("--prefix: %d exceeds %d", prefix, ss58.MaxPrefix)
				}
				p = uint16(prefix)
			}
			id, err := resolveAccount(args[0], p)
			if err != nil {
				return err
			}
			addr, err := ss58.Encode(id[:], p)
			if err != nil {
				return err
			}
			info := addressInfo{Address: addr, PublicKey: convert.BytesToHex(id[:]), Prefix: p}
			if a.jsonOut {
				return report.JSON(a.stdout, info)
			}
			_, err = fmt.Fprintln(a.stdout, info.Address)
			return err
		},
	}
	cmd.Flags().IntVar(&prefix, "prefix", -1, "SS58 network prefix (default from config)")
	return cmd
}

// resolveAccount accepts a 0x public key, an SS58 address, a dev account
// name or a secret URI.
func resolveAccount(s string, prefix uint16) (xychain.AccountID, error) {
	if strings.HasPrefix(s, "0x") {
		pub, err := convert.HexToBytes(s)
		if err != nil {
			return xychain.AccountID{}, err
		}
		return xychain.NewAccountID(pub)
	}
	if pub, _, err := ss58.Decode(s); err == nil && len(pub) == 32 {
		return xychain.NewAccountID(pub)
	}
	id, err := resolveIdentity(s, prefix)
	if err != nil {
		return xychain.AccountID{}, err
	}
	return id.AccountID(), nil
}

func resolveIdentity(s string, prefix uint16) (*xychain.Identity, error) {
	if id, err := xychain.DevIdentity(s, prefix); err == nil {
		return id, nil
	}
	return xychain.NewIdentity(s, s, prefix)
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the custom RPC methods the harness expects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := xychain.DefaultSchema()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, s)
			}
			reg, err := xychain.Register(s)
			if err != nil {
				return err
			}
			for _, full := range s.MethodNames() {
				ns, name, _ := strings.Cut(full, "_")
				m, _ := s.Method(ns, name)
				params := make([]string, len(m.Params))
				for i, p := range m.Params {
					params[i] = p.Name + ": " + p.Type
				}
				fmt.Fprintf(a.stdout, "%s(%s) -> %s\n", full, strings.Join(params, ", "), m.Type)
				if m.Description != "" {
					fmt.Fprintf(a.stdout, "    %s\n", m.Description)
				}
				result := strings.TrimSuffix(strings.TrimPrefix(m.Type, "Option<"), ">")
				if goType, ok := reg.GoType(result); ok {
					fmt.Fprintf(a.stdout, "    decodes into %s\n", goType)
				}
			}
			return nil
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read chain state",
	}
	cmd.AddCommand(
		newQueryNextIDsCmd(a),
		newQueryAccountCmd(a),
		newQueryPendingPodsCmd(a),
		newQueryNftCmd(a),
	)
	return cmd
}

func newQueryNextIDsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "next-ids",
		Short: "Show the last assigned NFT and POD ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			nft, err := conn.NextNftID(ctx)
			if err != nil {
				return err
			}
			pod, err := conn.NextPodID(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, map[string]uint32{"next_nft_id": nft, "next_pod_id": pod})
			}
			_, err = fmt.Fprintf(a.stdout, "next nft id: %d\nnext pod id: %d\n", nft, pod)
			return err
		},
	}
}

type accountView struct {
	Address    string                  `json:"address"`
	Free       string                  `json:"free"`
	Reserved   string                  `json:"reserved"`
	InterestPA string                  `json:"interest_pa"`
	Locked     []xychain.RPCLockedFund `json:"locked"`
}

func newQueryAccountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "account <who>",
		Short: "Show balances and locks of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			who, err := resolveAccount(args[0], a.cfg.Node.SS58Prefix)
			if err != nil {
				return err
			}
			conn, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			acct, err := conn.Account(ctx, who)
			if err != nil {
				return err
			}
			data, err := conn.AccountData(ctx, who)
			if err != nil {
				return err
			}
			interest, err := conn.InterestPA(ctx, who)
			if err != nil {
				return err
			}

			view := accountView{
				Address:    conn.Address(who),
				Free:       convert.ToDollar(acct.FreeBalance()),
				Reserved:   convert.ToDollar(acct.ReservedBalance()),
				InterestPA: convert.ToDollar(interest),
				Locked:     data.Locked,
			}
			if a.jsonOut {
				return report.JSON(a.stdout, view)
			}
			fmt.Fprintf(a.stdout, "%s\n  free:     $%s\n  reserved: $%s\n  interest: $%s per year\n",
				view.Address, view.Free, view.Reserved, view.InterestPA)
			for _, l := range view.Locked {
				fmt.Fprintf(a.stdout, "  lock %d: $%s (%s) until block %d\n",
					l.ID, convert.ToDollar(l.Amount.Big()), l.Reason, l.UnlockAt)
			}
			return nil
		},
	}
}

func newQueryPendingPodsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending-pods <who>",
		Short: "Show PODs an account is delivering or receiving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			who, err := resolveAccount(args[0], a.cfg.Node.SS58Prefix)
			if err != nil {
				return err
			}
			conn, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			pods, err := conn.PendingPods(ctx, who)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return report.JSON(a.stdout, pods)
			}
			printPods := func(label string, list []xychain.RPCNftData) {
				fmt.Fprintf(a.stdout, "%s (%d)\n", label, len(list))
				for _, p := range list {
					fmt.Fprintf(a.stdout, "  pod %d: nft %d %q for $%s, expires at block %d\n",
						p.PodID, p.NftID, string(p.NftName), convert.ToDollar(p.Price.Big()), p.ExpiryBlock)
				}
			}
			printPods("delivering", pods.Delivering)
			printPods("receiving", pods.Receiving)
			return nil
		},
	}
}

type nftView struct {
	ID       uint32 `json:"id"`
	Owner    string `json:"owner,omitempty"`
	FileName string `json:"file_name"`
	Size     int    `json:"size"`
}

func newQueryNftCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nft <id>",
		Short: "Show an approved NFT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("nft id: %w", err)
			}
			conn, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			data, err := conn.NftData(ctx, uint32(id))
			if err != nil {
				return err
			}
			if data == nil {
				return fmt.Errorf("nft %d not found", id)
			}
			view := nftView{ID: uint32(id), FileName: string(data.FileName), Size: len(data.Data)}
			if owner, ok, err := conn.Owner(ctx, uint32(id)); err != nil {
				return err
			} else if ok {
				view.Owner = conn.Address(owner)
			}
			if a.jsonOut {
				return report.JSON(a.stdout, view)
			}
			_, err = fmt.Fprintf(a.stdout, "nft %d: %s (%s) owned by %s\n",
				view.ID, view.FileName, humanSize(view.Size), view.Owner)
			return err
		},
	}
}

func humanSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/unit)
}
