// Command apikeys-server serves the API key management routes and an example
// API protected by API keys.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:           "apikeys-server",
		Short:         "API key authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema migrations",
		RunE:  runMigrate,
	}

	issueCmd = &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key for a user and print the plaintext once",
		RunE:  runIssue,
	}

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Issue a primary session token for a user",
		RunE:  runSession,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	migrateCmd.Flags().String("direction", "up", "migration direction (up|down)")

	issueCmd.Flags().String("user", "", "owner user id")
	issueCmd.Flags().String("name", "", "key name")
	issueCmd.Flags().StringSlice("scope", nil, "granted scope (repeatable); none grants full access")
	issueCmd.Flags().String("tenant", "", "tenant id")
	issueCmd.Flags().Duration("expires-in", 0, "lifetime of the key; 0 never expires")
	_ = issueCmd.MarkFlagRequired("user")
	_ = issueCmd.MarkFlagRequired("name")

	sessionCmd.Flags().String("user", "", "user id")
	_ = sessionCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, migrateCmd, issueCmd, sessionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
