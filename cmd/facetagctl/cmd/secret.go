package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Generate a random JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, err := generateSecret(mustGetInt(cmd, "bytes"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
		return err
	},
}

func init() {
	rootCmd.AddCommand(genSecretCmd)
	genSecretCmd.Flags().Int("bytes", 32, "Random bytes before encoding (min 32)")
}

func generateSecret(n int) (string, error) {
	if n < 32 {
		return "", fmt.Errorf("secret must have at least 32 bytes, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
