package main

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/importer"
	"github.com/sells-group/places-import/internal/model"
)

var (
	importArchivePath string
	importUserID      string
	importSelections  []string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a saved-places archive and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sel, err := parseSelections(importSelections)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "import")
		if err != nil {
			return err
		}
		defer env.Close()

		return runImport(cmd.Context(), env.Service, cmd.OutOrStdout(), importer.Request{
			ArchivePath: importArchivePath,
			UserID:      importUserID,
			Selections:  sel,
		})
	},
}

// runImport processes req synchronously and writes the result as JSON. A
// job that ends in the error stage is reported and returned as an error.
func runImport(ctx context.Context, svc *importer.Service, out io.Writer, req importer.Request) error {
	res, err := svc.Process(ctx, req)
	if err != nil {
		return eris.Wrap(err, "import archive")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "write result")
	}

	if !res.Success {
		return eris.Errorf("import failed with %d error(s)", len(res.Errors))
	}
	zap.L().Info("import complete",
		zap.String("archive", req.ArchivePath),
		zap.Int("lists", res.ListsCreated),
		zap.Int("places", res.PlacesImported),
		zap.Int("warnings", len(res.Errors)),
	)
	return nil
}

func parseSelections(raw []string) ([]model.Selection, error) {
	var out []model.Selection
	for _, r := range raw {
		s, err := parseSelection(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// parseSelection reads "name[=display][:price]". The text after the last
// colon is a price only when it is numeric, so names like "Tokyo: Food" keep
// their colon. A positive price marks the list as monetized.
func parseSelection(raw string) (model.Selection, error) {
	rest := strings.TrimSpace(raw)
	var sel model.Selection

	if i := strings.LastIndex(rest, ":"); i >= 0 {
		if price, err := strconv.ParseFloat(strings.TrimSpace(rest[i+1:]), 64); err == nil {
			if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				return sel, eris.Errorf("selection %q: invalid price", raw)
			}
			sel.Price = price
			sel.Monetize = price > 0
			rest = rest[:i]
		}
	}

	name, display, _ := strings.Cut(rest, "=")
	sel.Name = strings.TrimSpace(name)
	sel.DisplayName = strings.TrimSpace(display)
	if sel.Name == "" {
		return sel, eris.Errorf("selection %q: list name is required", raw)
	}
	return sel, nil
}

func init() {
	importCmd.Flags().StringVar(&importArchivePath, "archive", "", "path to the export archive (required)")
	importCmd.Flags().StringVar(&importUserID, "user", "", "owning user id (required)")
	importCmd.Flags().StringArrayVar(&importSelections, "select", nil, "import only this list: name[=display][:price] (repeatable)")
	_ = importCmd.MarkFlagRequired("archive")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}
