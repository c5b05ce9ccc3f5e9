package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yungbote/pdfrag-backend/internal/app"
	"github.com/yungbote/pdfrag-backend/internal/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf | object-key]",
	Short: "Ingest a PDF once",
	Long: `Runs the ingestion pipeline on a local PDF and prints the report.
With --from-bucket the argument is an object key in the blob store.
With --all every PDF in the blob store is ingested.`,
	Args: validateIngestArgs,
	RunE: runIngest,
}

var (
	ingestFromBucket bool
	ingestAll        bool
	ingestPrefix     string
)

func init() {
	ingestCmd.Flags().BoolVar(&ingestFromBucket, "from-bucket", false, "read the PDF from the blob store")
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "ingest every PDF in the blob store")
	ingestCmd.Flags().StringVar(&ingestPrefix, "prefix", "", "object key prefix for --all")
	rootCmd.AddCommand(ingestCmd)
}

func validateIngestArgs(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all {
		if len(args) != 0 {
			return errors.New("--all takes no arguments")
		}
		return nil
	}
	if len(args) != 1 {
		return errors.New("expected exactly one file or object key")
	}
	if !services.IsIngestible(args[0]) {
		return fmt.Errorf("%s is not a .pdf file", args[0])
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var out any
	switch {
	case ingestAll:
		out, err = a.Services.Documents.IngestAll(ctx, ingestPrefix)
	case ingestFromBucket:
		out, err = a.Services.Documents.IngestStored(ctx, args[0])
	default:
		data, readErr := os.ReadFile(args[0])
		if readErr != nil {
			return fmt.Errorf("read %s: %w", args[0], readErr)
		}
		out, err = a.Services.Ingestion.Ingest(ctx, data, filepath.Base(args[0]))
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
