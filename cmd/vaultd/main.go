package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/pdavault/config"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/rpc"
	"xdao.co/pdavault/runtime"
	"xdao.co/pdavault/storage"
	"xdao.co/pdavault/storage/grpccas"
	"xdao.co/pdavault/storage/localfs"
	"xdao.co/pdavault/vault"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vaultd:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "vaultd",
		Short:         "Serve the PDA vault program over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, configFile)
			if err != nil {
				return err
			}
			log, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				log.Error("listen failed", zap.String("listen", cfg.Listen), zap.Error(err))
				return err
			}
			if err := serve(ctx, cfg, log, lis); err != nil {
				log.Error("vaultd stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: pdavault.yaml in the user config dir or working dir)")
	pf.String("program-id", "", "Vault program address (base58)")
	pf.String("data-dir", "", "Directory holding HEAD and local snapshot blocks")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	flags := cmd.Flags()
	flags.String("listen", "", "gRPC listen address")
	flags.Bool("faucet", false, "Enable the Fund RPC")
	flags.Bool("serve-blocks", false, "Also serve the snapshot store as a BlockStore on the listen address")

	cmd.AddCommand(newBackupCommand(&configFile), newRestoreCommand(&configFile))
	return cmd
}

// serve restores the bank, then serves the Vault service (and, with
// ServeBlocks, the BlockStore service) on lis until ctx is done.
func serve(ctx context.Context, cfg config.Config, log *zap.Logger, lis net.Listener) error {
	programID, err := cfg.ProgramAddress()
	if err != nil {
		return err
	}

	cas, closeStore, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return err
	}
	head := localfs.NewHead(cfg.HeadPath())
	bank, err := restoreBank(cas, head, log)
	if err != nil {
		return err
	}

	program := vault.New(programID, vault.WithRent(cfg.Rent), vault.WithLogger(log))
	s := grpc.NewServer()
	rpc.RegisterVaultServer(s, &rpc.Server{
		Runtime:   runtime.New(bank, program, log),
		Snapshots: cas,
		Head:      head,
		Faucet:    cfg.Faucet,
		Log:       log,
	})
	if cfg.ServeBlocks {
		grpccas.RegisterBlockStoreServer(s, &grpccas.Server{CAS: cas})
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()

	log.Info("vaultd listening",
		zap.String("addr", lis.Addr().String()),
		zap.Stringer("program", programID),
		zap.Int("backends", len(cfg.Storage.Backends)),
		zap.Bool("faucet", cfg.Faucet),
		zap.Bool("serve_blocks", cfg.ServeBlocks),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		s.GracefulStop()
		<-errc
		return nil
	}
}

// restoreBank loads the snapshot HEAD points at. A missing HEAD starts an
// empty ledger.
func restoreBank(cas storage.CAS, head *localfs.Head, log *zap.Logger) (*ledger.Bank, error) {
	bank := ledger.NewBank()
	id, err := head.Read()
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("no snapshot head, starting empty ledger", zap.String("head", head.Path()))
		return bank, nil
	}
	if err != nil {
		return nil, err
	}
	if err := bank.Load(cas, id); err != nil {
		return nil, err
	}
	log.Info("restored ledger",
		zap.Stringer("snapshot", id),
		zap.Int("accounts", len(bank.Addresses())),
	)
	return bank, nil
}
