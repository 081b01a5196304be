package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/syncstore/internal/hpke"
)

// keygenCmd prints a fresh HPKE key pair for out-of-band client
// provisioning.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an HPKE key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, public, err := hpke.GenerateKeyPair()
		if err != nil {
			return err
		}
		fmt.Printf("public_key: %s\n", base64.StdEncoding.EncodeToString(public))
		fmt.Printf("secret_key: %s\n", base64.StdEncoding.EncodeToString(secret))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
