package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"xdao.co/pdavault/config"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/storage/bundle"
	"xdao.co/pdavault/storage/localfs"
)

// createArchive opens the backup destination. Tests replace it.
var createArchive = func(path string) (io.WriteCloser, error) { return os.Create(path) }

func newBackupCommand(configFile *string) *cobra.Command {
	var out string
	var compress bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the HEAD snapshot to a bundle archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, *configFile)
			if err != nil {
				return err
			}
			cas, closeStore, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			head, err := localfs.NewHead(cfg.HeadPath()).Read()
			if err != nil {
				return err
			}

			export := bundle.Export
			if compress {
				export = bundle.ExportCompressed
			}
			if out == "-" {
				return export(cmd.OutOrStdout(), cas, head)
			}

			f, err := createArchive(out)
			if err != nil {
				return err
			}
			if err := export(f, cas, head); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrapf(err, "close %s", out)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "backed up %s to %s\n", head, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "Archive path, or - for stdout")
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress the archive with zstd")
	return cmd
}

func newRestoreCommand(configFile *string) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Import a bundle archive (plain or zstd) and point HEAD at its snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, *configFile)
			if err != nil {
				return err
			}
			cas, closeStore, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			var r io.Reader = cmd.InOrStdin()
			if in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			head, err := bundle.Import(r, cas)
			if err != nil {
				return err
			}

			// Refuse to move HEAD to bytes that do not decode as a ledger.
			bank := ledger.NewBank()
			if err := bank.Load(cas, head); err != nil {
				return err
			}
			if err := localfs.NewHead(cfg.HeadPath()).Write(head); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%d accounts, %d lamports)\n",
				head, len(bank.Addresses()), bank.TotalLamports())
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "-", "Archive path, or - for stdin")
	return cmd
}
