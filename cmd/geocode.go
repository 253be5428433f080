package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode QUERY",
	Short: "Resolve one query through the rate-limited lookup queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		queue := initQueue()
		defer queue.Close()

		query := strings.Join(args, " ")
		res := queue.Submit(cmd.Context(), query)
		if res == nil {
			zap.L().Info("no match", zap.String("query", query))
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "null")
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
