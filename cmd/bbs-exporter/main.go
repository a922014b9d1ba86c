// Command bbs-exporter exports Bitbucket Server repositories, with their
// pull requests, comments, teams and branch permissions, into a GitHub
// migration archive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/bbs-exporter/internal/config"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/export"
	"github.com/steveyegge/bbs-exporter/internal/ui"
)

// DefaultOutput is the archive written when --output is not given.
const DefaultOutput = "migration_archive.tar.gz"

var (
	repositoriesFlag []string
	projectsFlag     []string
	manifestFlag     string
	noModelsFlag     bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "bbs-exporter",
	Short: "Export Bitbucket Server repositories to a GitHub migration archive",
	Long: `Export Bitbucket Server repositories into a migration archive that GitHub
can import. Each repository is exported with its git data, releases and
branch permissions, and optionally its pull requests, commit comments and
teams.

Connection settings come from flags, BBS_* environment variables (the
BITBUCKET_SERVER_* names are still accepted), a .env file or
bbs-exporter.yaml.`,
	Example: `  bbs-exporter -r PROJ/repo -o archive.tar.gz
  bbs-exporter --projects PROJ,OPS --models pull_requests
  bbs-exporter --manifest repos.csv --since 90d`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return &configError{err: err}
		}
		if err := bindFlags(cmd); err != nil {
			return &configError{err: err}
		}
		applyVerbosityFlags()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(rootCtx)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.String("server-url", "", "Bitbucket Server URL (env: BITBUCKET_SERVER_URL)")
	flags.String("username", "", "Bitbucket Server username (env: BITBUCKET_SERVER_API_USERNAME)")
	flags.String("token", "", "personal access token (env: BITBUCKET_SERVER_API_TOKEN)")
	flags.StringSliceVarP(&repositoriesFlag, "repositories", "r", nil, "repositories to export as PROJECT/slug (repeatable)")
	flags.StringSliceVarP(&projectsFlag, "projects", "p", nil, "export every repository of these projects")
	flags.StringVarP(&manifestFlag, "manifest", "f", "", "file listing repositories: CSV project,slug rows or a YAML list")
	flags.StringSlice("models", config.OptionalModels, "optional models to export")
	flags.BoolVar(&noModelsFlag, "no-models", false, "export only repositories, releases and branch permissions")
	flags.Int("max-threads", config.DefaultMaxThreads, "maximum number of concurrent requests per stage")
	flags.StringP("output", "o", "", "archive to write (default \""+DefaultOutput+"\")")
	flags.String("staging-dir", "", "directory to stage the archive in (default: a temporary directory)")
	flags.Bool("ssl-verify", true, "verify the server's TLS certificate")
	flags.Bool("ignore-version-check", false, "export from Bitbucket Server versions older than "+export.MinimumVersion)
	flags.String("since", "", "skip pull requests not updated since (e.g. 90d, 2024-01-31, \"last month\")")

	persistent := rootCmd.PersistentFlags()
	persistent.BoolP("verbose", "v", false, "enable debug output")
	persistent.BoolP("quiet", "q", false, "suppress progress output, show only errors")
	persistent.Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
}

// bindFlags lets every flag that was set override its config key.
func bindFlags(cmd *cobra.Command) error {
	for _, key := range []string{
		"server-url", "username", "token",
		"models", "max-threads", "output", "staging-dir",
		"ssl-verify", "ignore-version-check", "since",
		"verbose", "quiet", "no-color",
	} {
		flag := cmd.Flags().Lookup(key)
		if flag == nil {
			continue
		}
		if err := config.BindFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", key, err)
		}
	}
	if noModelsFlag {
		config.Set("models", []string{"none"})
	}
	return nil
}

func applyVerbosityFlags() {
	debug.SetVerbose(config.GetBool("verbose"))
	debug.SetQuiet(config.GetBool("quiet"))
	ui.ApplyColorPreference(config.GetBool("no-color"))
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	setupSignalContext()
	defer rootCancel()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFailIcon(), ui.RenderFail(err.Error()))
	}
	code := exitCode(err)
	rootCancel()
	os.Exit(code)
}
