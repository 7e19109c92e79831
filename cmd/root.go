package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "member",
	Short: "Member authentication microservice",
	Long:  `A member authentication microservice providing signup, password and OAuth login, token rotation, and account recovery via HTTP and gRPC.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
