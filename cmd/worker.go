package cmd

import (
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the mail queue worker",
	Long:  `Consume queued password reset mails from Redis and deliver them over SMTP.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg := loadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runMailWorker(ctx, cfg); err != nil {
			logrus.WithError(err).Fatal("Mail worker failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
