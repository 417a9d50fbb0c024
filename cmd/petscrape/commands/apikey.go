package commands

import (
	"fmt"
	"lapets-backend/lib/serviceutil"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(apiKeyCmd)
}

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Generates a random key for api.api_key.",
	Run: func(cmd *cobra.Command, args []string) {
		key, err := random.String(40)
		if err != nil {
			serviceutil.Fatal("failed to generate key", err)
		}
		fmt.Println(key)
	},
}
