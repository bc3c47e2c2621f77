package cmd

import (
	"fmt"
	"os"

	"membership-billing-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	dbPath  string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Membership billing and reconciliation tool",
	Long: `Billingctl generates rolling-period membership fees, parses bank
statements in delimited, CODA and MT940 formats, and scores the parsed
transactions against open fees for human confirmation.

Examples:
  billingctl generate --tenant club-1 --strategy catchup
  billingctl match --tenant club-1 --statement export.csv --format delimited --bank kbc
  billingctl cardstatus --member 7f3a...`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the billing database")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads the optional config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("BILLING")
	viper.AutomaticEnv()

	setupLogger()
}

func setupLogger() {
	level := logger.InfoLevel
	if viper.GetBool("verbose") {
		level = logger.DebugLevel
	}
	if s := viper.GetString("log_level"); s != "" {
		if parsed, err := logger.ParseLevel(s); err == nil {
			level = parsed
		}
	}

	format := logger.TextFormat
	if viper.GetString("log_format") == "json" {
		format = logger.JSONFormat
	}

	log, err := logger.New(&logger.Config{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(1)
	}
	logger.SetGlobal(log)
}

// SetVersionInfo sets the build metadata shown by --version.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
