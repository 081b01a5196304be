package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/syncstore/internal/store"
)

var (
	importNamespace  string
	importCollection string
	importBatchSize  int
)

// importCmd replays a JSONL dump through the mapper's import path: one
// record per line carrying externally supplied id, timestamps, owner, and
// body. Records are applied in batches, each batch in one transaction, and
// bodies are still schema-validated.
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Bulk-load items from a JSONL dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if importBatchSize < 1 {
			return fmt.Errorf("batch size must be at least 1")
		}

		manager, err := buildManager(cfg)
		if err != nil {
			return fmt.Errorf("building data manager: %w", err)
		}
		defer manager.Close()

		backend, err := manager.BackendFor(importNamespace)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening dump: %w", err)
		}
		defer f.Close()

		ctx := context.Background()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

		var imported, line int
		batch := make([]store.ImportRecord, 0, importBatchSize)

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if _, err := backend.ImportBatch(ctx, importCollection, batch); err != nil {
				return fmt.Errorf("batch ending at line %d (%d records rolled back): %w",
					line, len(batch), err)
			}
			imported += len(batch)
			batch = batch[:0]
			return nil
		}

		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var rec store.ImportRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("line %d: malformed record: %w", line, err)
			}
			batch = append(batch, rec)

			if len(batch) == importBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading dump: %w", err)
		}
		if err := flush(); err != nil {
			return err
		}

		log.Info().
			Int("imported", imported).
			Str("namespace", importNamespace).
			Str("collection", importCollection).
			Msg("Import finished")

		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importNamespace, "namespace", "", "target namespace (required)")
	importCmd.Flags().StringVar(&importCollection, "collection", "", "target collection (required)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "records per transaction")
	_ = importCmd.MarkFlagRequired("namespace")
	_ = importCmd.MarkFlagRequired("collection")
	rootCmd.AddCommand(importCmd)
}
