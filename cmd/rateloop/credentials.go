package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/server"
)

const passphraseEnv = "RATELOOP_CREDENTIALS_PASSPHRASE"

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage credential files",
	}
	cmd.AddCommand(newCredentialsSealCmd())
	return cmd
}

func newCredentialsSealCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "seal <file>",
		Short: "Encrypt a credentials file with a passphrase",
		Long: `Encrypts a JSON or YAML credentials file. The passphrase is read from
` + passphraseEnv + `. Point credentials.path at the resulting .sealed file
and set credentials.passphrase to use it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			passphrase := os.Getenv(passphraseEnv)
			if passphrase == "" {
				return fmt.Errorf("%s is not set", passphraseEnv)
			}
			if out == "" {
				out = strings.TrimSuffix(in, ".json")
				out = strings.TrimSuffix(out, ".yaml")
				out = strings.TrimSuffix(out, ".yml")
				out += credential.SealedExt
			}

			n, err := credential.SealFile(in, out, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sealed %d credentials to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: input with .sealed extension)")
	return cmd
}

var passwdCmd = &cobra.Command{
	Use:   "passwd <password>",
	Short: "Print the bcrypt hash for server.password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := server.HashPassword(args[0])
		if errors.Is(err, server.ErrPasswordTooShort) {
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(passwdCmd)
}
