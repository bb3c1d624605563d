package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/berthertogen/delta-kusto/gateway"
	"github.com/berthertogen/delta-kusto/orchestration"
	"github.com/berthertogen/delta-kusto/params"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// version and commit are set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	parameterFilePath string
	overrides         []string
	verbose           bool
)

var rootCmd = &cobra.Command{
	Use:   "delta-kusto",
	Short: "Compute and apply deltas between Kusto database schemas",
	Long: `delta-kusto compares two Kusto database schemas (live databases or
script files) and produces the minimal control-command script that drives the
current schema to the target schema.`,
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("delta-kusto %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&parameterFilePath, "parameters", "p", "", "path to the parameter file (required)")
	rootCmd.Flags().StringArrayVarP(&overrides, "override", "o", nil, "parameter override, path=value (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = rootCmd.MarkFlagRequired("parameters")
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbose)

	data, err := os.ReadFile(parameterFilePath)
	if err != nil {
		return fmt.Errorf("read parameter file: %w", err)
	}
	cfg, err := params.Load(data)
	if err != nil {
		return err
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return err
	}

	cred, err := credential(cfg.TokenProvider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := orchestration.Dependencies{
		Files: gateway.LocalFile{},
		NewDatabase: func(clusterURI, database string, logger zerolog.Logger) (gateway.Database, error) {
			return gateway.NewKusto(clusterURI, database, cred, nil, logger)
		},
		Logger: logger,
	}
	return orchestration.Run(ctx, cfg, deps)
}

// newLogger writes structured progress to stderr, keeping stdout free for
// script output. Verbose drops the level filter to debug.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// credential maps the parameter file's token provider onto azidentity.
func credential(tp *params.TokenProvider) (azcore.TokenCredential, error) {
	switch {
	case tp != nil && tp.ClientSecret != nil:
		return azidentity.NewClientSecretCredential(
			tp.ClientSecret.TenantID, tp.ClientSecret.ClientID, tp.ClientSecret.Secret, nil)
	case tp != nil && tp.AzCli != nil:
		return azidentity.NewAzureCLICredential(nil)
	default:
		return azidentity.NewDefaultAzureCredential(nil)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
