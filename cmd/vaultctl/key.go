package main

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/spf13/cobra"

	"xdao.co/pdavault/keys"
)

func newKeyCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Local owner key management",
	}
	cmd.AddCommand(newKeyInitCommand(g), newKeyDeriveCommand(g), newKeyListCommand(g), newKeyShowCommand(g))
	return cmd
}

func newKeyInitCommand(g *globals) *cobra.Command {
	var name, seedHex string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a root owner key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keys.CheckName(name); err != nil {
				return usagef("invalid --name: %v", err)
			}
			var seed []byte
			if seedHex != "" {
				var err error
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return usagef("invalid --seed-hex: %v", err)
				}
			} else {
				seed = make([]byte, ed25519.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
			}
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			key, path, err := ks.InitRoot(name, seed, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created root key: %s\n", key.Address)
			fmt.Fprintf(cmd.OutOrStdout(), "Stored at: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Key name")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	return cmd
}

func newKeyDeriveCommand(g *globals) *cobra.Command {
	var name, label string
	var force bool
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a labelled owner key from a root key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keys.CheckName(name); err != nil {
				return usagef("invalid --name: %v", err)
			}
			if err := keys.CheckLabel(label); err != nil {
				return usagef("invalid --label: %v", err)
			}
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			key, path, err := ks.Derive(name, label, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created derived key: %s\n", key.Address)
			fmt.Fprintf(cmd.OutOrStdout(), "Stored at: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Root key name")
	cmd.Flags().StringVar(&label, "label", "", "Label of the derived key (e.g. savings)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	return cmd
}

func newKeyListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			entries, err := ks.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Name)
				for _, l := range e.Labels {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", l)
				}
			}
			return nil
		},
	}
}

func newKeyShowCommand(g *globals) *cobra.Command {
	var name, label string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the address of a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			key, err := ks.Load(name, label)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Key name")
	cmd.Flags().StringVar(&label, "label", "", "Optional derived key label")
	return cmd
}
