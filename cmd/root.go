package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// defaultLocalUser is the session MCP tools and CLI commands act on when
// no user id is given.
const defaultLocalUser = "local"

var (
	envFiles  []string
	debugMode bool
	userID    string
)

// rootCmd represents the base command for the mailsense application
var rootCmd = &cobra.Command{
	Use:   "mailsense",
	Short: "Learns your writing style from your sent mail",
	Long: `mailsense signs in to Gmail, collects the mail you sent, keeps the
passages written in your own voice and uses them to write and refine new
text in your style.

It can run as:
  - An HTTP server with a JSON API and live session updates over WebSockets
  - An MCP (Model Context Protocol) server for AI assistants
  - A command line tool for the same workflow`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailsense version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default: .env)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&userID, "user", defaultLocalUser, "Session user id that commands and MCP tools act on by default")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newRefineCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
