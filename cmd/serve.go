package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/pdfrag-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Applies the schema, then serves the session stream, query submission
and document upload endpoints until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
		a.Log.Info("Shutting down")
		return nil
	}
}
