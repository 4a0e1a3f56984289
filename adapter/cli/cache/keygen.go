package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ENTITLEKIT_CACHE_KEY for the encrypted file cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}
