package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/repository"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired refresh token families",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := repository.NewTokenFamilyRepository(db).DeleteExpired(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("failed to delete expired token families: %w", err)
		}

		fmt.Printf("deleted %d expired token families\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
