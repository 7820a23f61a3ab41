package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/instruction"
	"xdao.co/pdavault/keys"
	"xdao.co/pdavault/record"
	"xdao.co/pdavault/vault"
)

// signerFlags select the owner key that signs a transaction.
type signerFlags struct {
	seedHex string
	keyFile string
	name    string
	label   string
}

func (s *signerFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "Owner seed as 64 hex chars")
	fs.StringVar(&s.keyFile, "key-file", "", "Path to an owner seed file")
	fs.StringVar(&s.name, "name", "", "Stored key name")
	fs.StringVar(&s.label, "label", "", "Derived key label under --name")
}

func (s *signerFlags) resolve(g *globals) (keys.OwnerKey, error) {
	if s.seedHex == "" && s.keyFile == "" && s.name == "" {
		return keys.OwnerKey{}, usagef("one of --seed-hex, --key-file or --name is required")
	}
	ks, err := g.keyStore()
	if err != nil {
		return keys.OwnerKey{}, err
	}
	return ks.Resolve(s.seedHex, s.keyFile, s.name, s.label)
}

type buildFunc func(program, owner address.Address) (*instruction.Instruction, error)

// newTxCommand builds a command that signs one vault instruction with the
// selected owner key and submits it, or prints it with --print. The nonce is
// read from vaultd unless --nonce is given; --print never dials, so it needs
// --nonce.
func newTxCommand(g *globals, use, short string, withAmount bool, build func(program, owner address.Address, amount uint64) (*instruction.Instruction, error)) *cobra.Command {
	var signer signerFlags
	var amount uint64
	var printOnly bool
	var nonce uint64
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			program, err := g.program()
			if err != nil {
				return err
			}
			owner, err := signer.resolve(g)
			if err != nil {
				return err
			}
			ix, err := build(program, owner.Address, amount)
			if err != nil {
				return err
			}
			tx := instruction.NewTransaction(ix)
			tx.Nonce = nonce

			if printOnly {
				if !cmd.Flags().Changed("nonce") {
					return usagef("--print requires --nonce")
				}
				if err := owner.SignTransaction(tx); err != nil {
					return err
				}
				raw, err := tx.Marshal()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
				return nil
			}

			client, err := g.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			if !cmd.Flags().Changed("nonce") {
				acct, err := client.Account(cmd.Context(), owner.Address)
				if err != nil {
					return err
				}
				tx.Nonce = acct.Nonce
			}
			if err := owner.SignTransaction(tx); err != nil {
				return err
			}
			snapshot, err := client.Submit(cmd.Context(), tx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s committed (owner=%s", use, owner.Address)
			if withAmount {
				fmt.Fprintf(cmd.OutOrStdout(), " amount=%d", amount)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
			if snapshot != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", snapshot)
			}
			return nil
		},
	}
	signer.register(cmd.Flags())
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the signed transaction as hex instead of submitting it")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "Owner nonce to sign with (default: current value from vaultd)")
	if withAmount {
		cmd.Flags().Uint64Var(&amount, "amount", 0, "Amount in lamports")
		_ = cmd.MarkFlagRequired("amount")
	}
	return cmd
}

func noAmount(build buildFunc) func(program, owner address.Address, _ uint64) (*instruction.Instruction, error) {
	return func(program, owner address.Address, _ uint64) (*instruction.Instruction, error) {
		return build(program, owner)
	}
}

func newInitializeCommand(g *globals) *cobra.Command {
	return newTxCommand(g, "initialize", "Create the vault for an owner", false, noAmount(instruction.NewInitializeInstruction))
}

func newDepositCommand(g *globals) *cobra.Command {
	return newTxCommand(g, "deposit", "Move lamports from the owner into custody", true, instruction.NewDepositInstruction)
}

func newWithdrawCommand(g *globals) *cobra.Command {
	return newTxCommand(g, "withdraw", "Move lamports from custody back to the owner", true, instruction.NewWithdrawInstruction)
}

func newCloseCommand(g *globals) *cobra.Command {
	return newTxCommand(g, "close", "Sweep custody and reclaim the vault state", false, noAmount(instruction.NewCloseInstruction))
}

func newAddressCommand(g *globals) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the state and custody addresses derived for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			program, err := g.program()
			if err != nil {
				return err
			}
			ownerAddr, err := address.Parse(owner)
			if err != nil {
				return usagef("invalid --owner: %v", err)
			}
			addrs, err := vault.FindAddresses(program, ownerAddr)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "program: %s\n", program)
			fmt.Fprintf(w, "owner:   %s\n", addrs.Owner)
			fmt.Fprintf(w, "state:   %s (bump %d)\n", addrs.State, addrs.StateBump)
			fmt.Fprintf(w, "custody: %s (bump %d)\n", addrs.Custody, addrs.VaultBump)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner address (base58)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newAccountCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "account <address>",
		Short: "Show an account held by vaultd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return usagef("invalid address: %v", err)
			}
			client, err := g.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			acct, err := client.Account(cmd.Context(), addr)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "address:  %s\n", acct.Address)
			fmt.Fprintf(w, "owner:    %s\n", acct.Owner)
			fmt.Fprintf(w, "lamports: %d\n", acct.Lamports)
			fmt.Fprintf(w, "nonce:    %d\n", acct.Nonce)
			fmt.Fprintf(w, "data:     %d bytes\n", len(acct.Data))
			if len(acct.Data) > 0 {
				if program, perr := g.program(); perr == nil && acct.Owner == program {
					printRecord(w, acct.Data)
				}
			}
			return nil
		},
	}
}

func newFundCommand(g *globals) *cobra.Command {
	var lamports uint64
	cmd := &cobra.Command{
		Use:   "fund <address>",
		Short: "Credit an account through the vaultd faucet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return usagef("invalid address: %v", err)
			}
			client, err := g.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			snapshot, err := client.Fund(cmd.Context(), addr, lamports)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "funded %s with %d lamports\n", addr, lamports)
			if snapshot != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", snapshot)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&lamports, "lamports", 0, "Lamports to credit")
	_ = cmd.MarkFlagRequired("lamports")
	return cmd
}

func newInspectRecordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-record <hex>",
		Short: "Decode a vault state record (bare or discriminator-prefixed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
			if err != nil {
				return usagef("invalid hex: %v", err)
			}
			rec, err := record.Decode(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func printRecord(w io.Writer, data []byte) {
	rec, err := record.Decode(data)
	if err != nil {
		fmt.Fprintf(w, "record:   undecodable (%v)\n", err)
		return
	}
	fmt.Fprintf(w, "record:   %s\n", rec)
}
