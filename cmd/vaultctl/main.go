package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/config"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/keys"
	"xdao.co/pdavault/rpc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes vaultctl with args and returns the process exit code:
// 0 on success, 2 on usage errors, 1 otherwise.
func run(args []string, out, errOut io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.Execute(); err != nil {
		if code := errs.Code(err); code != "" {
			fmt.Fprintf(errOut, "error [%s %s]: %v\n", errs.KindOf(err), code, err)
		} else {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
		var uerr usageError
		if errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct{ error }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	target    string
	programID string
	keysDir   string
	timeout   time.Duration
}

func (g *globals) program() (address.Address, error) {
	addr, err := address.Parse(g.programID)
	if err != nil {
		return address.Address{}, usagef("invalid --program-id: %v", err)
	}
	return addr, nil
}

func (g *globals) keyStore() (*keys.KeyStore, error) {
	return keys.OpenKeyStore(g.keysDir)
}

func (g *globals) dial() (*rpc.Client, error) {
	return rpc.Dial(g.target, rpc.DialOptions{Timeout: g.timeout})
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Manage owner keys and PDA vaults",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.target, "target", "127.0.0.1:7650", "vaultd gRPC address")
	pf.StringVar(&g.programID, "program-id", envOr("PDAVAULT_PROGRAM_ID", config.DefaultProgramID), "Vault program address (base58)")
	pf.StringVar(&g.keysDir, "keys-dir", "", "Key store directory (default ~/.pdavault/keys)")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "Per-RPC timeout")

	cmd.AddCommand(
		newKeyCommand(g),
		newAddressCommand(g),
		newInitializeCommand(g),
		newDepositCommand(g),
		newWithdrawCommand(g),
		newCloseCommand(g),
		newAccountCommand(g),
		newFundCommand(g),
		newInspectRecordCommand(),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
