package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"secure-quiz-service/internal/bulkload"
	"secure-quiz-service/internal/config"
	pgseed "secure-quiz-service/internal/infra/postgres"
)

// NewImportCmd parses a CSV or JSON question file and publishes it as a seed
// bank in Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var bankID string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk-import questions into a seed bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, args[0], bankID)
		},
	}
	cmd.Flags().StringVar(&bankID, "bank", "default", "seed bank id to write")
	return cmd
}

func runImport(ctx context.Context, configPath, file, bankID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	var result bulkload.Result
	if strings.EqualFold(filepath.Ext(file), ".json") {
		result = bulkload.ParseJSON(string(raw))
	} else {
		result = bulkload.ParseCSV(string(raw))
	}
	for _, rowErr := range result.Errors {
		log.Printf("import: %s", rowErr)
	}
	if len(result.Parsed) == 0 {
		return fmt.Errorf("no valid questions in %s", file)
	}
	for i := range result.Parsed {
		result.Parsed[i].ID = uuid.NewString()
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgseed.NewBankLoader(pool).SaveBank(ctx, bankID, result.Parsed); err != nil {
		return err
	}
	log.Printf("imported %d questions into bank %s (%d rows skipped)",
		len(result.Parsed), bankID, len(result.Errors))
	return nil
}
