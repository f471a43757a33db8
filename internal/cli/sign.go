package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goatkit/prodmanager/internal/plugin/signing"
)

var (
	keygenOut string
	signKey   string
)

func noConfig(cmd *cobra.Command, args []string) error { return nil }

var pluginKeygenCmd = &cobra.Command{
	Use:               "keygen",
	Short:             "Generate an ed25519 key pair for signing shared objects",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := signing.GenerateKeyPair()
		if err != nil {
			return err
		}
		if _, err := os.Stat(keygenOut); err == nil {
			return fmt.Errorf("%s already exists", keygenOut)
		}
		if err := signing.WritePrivateKey(keygenOut, priv); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Private key written to %s\n", keygenOut)
		fmt.Fprintln(out, "Add the public key to plugins.trusted_keys:")
		fmt.Fprintln(out, hex.EncodeToString(pub))
		return nil
	},
}

var pluginSignCmd = &cobra.Command{
	Use:               "sign <file.so>",
	Short:             "Sign a shared object, writing <file.so>.sig",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if filepath.Ext(args[0]) != ".so" {
			return fmt.Errorf("%s is not a shared object", args[0])
		}
		priv, err := signing.ReadPrivateKey(signKey)
		if err != nil {
			return err
		}
		sigPath := signing.SignaturePath(args[0])
		if err := signing.SignFile(args[0], sigPath, priv); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signature written to %s\n", sigPath)
		return nil
	},
}

func init() {
	pluginKeygenCmd.Flags().StringVarP(&keygenOut, "output", "o", "prodmanager-signing.key", "private key file")
	pluginSignCmd.Flags().StringVarP(&signKey, "key", "k", "prodmanager-signing.key", "private key file")

	pluginCmd.AddCommand(pluginKeygenCmd)
	pluginCmd.AddCommand(pluginSignCmd)
}
