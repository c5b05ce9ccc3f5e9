package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/pdfrag-backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the status and vector tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.Migrate(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("Schema ready.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
