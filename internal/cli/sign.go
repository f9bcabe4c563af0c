package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/annobridge/internal/signature"
)

var signKey string

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Compute the HMAC signature of a payload",
	Long: `Sign reads a payload from the given file (or stdin when omitted) and
prints its hex HMAC-SHA256 signature, the value a peer would send in the
X-human-signature or X-exchange-signature header. The key defaults to
the configured exchange key.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var payload []byte
		var err error
		if len(args) == 1 {
			payload, err = os.ReadFile(args[0])
		} else {
			payload, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			exitWithError("read payload: %v", err)
		}

		key := signKey
		if key == "" {
			key = cfg.ExchangeKey
		}
		if key == "" {
			exitWithError("no signing key: pass --key or set HUMAN_EXCHANGE_KEY")
		}

		fmt.Println(signature.Sign(key, payload))
	},
}

func init() {
	signCmd.Flags().StringVar(&signKey, "key", "", "signing key (defaults to the exchange key)")
}
