package cmd

import (
	"os"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	configEnv    = "FLATHUB_FILTER_CONFIG"
	configPrefix = "FLATHUB_FILTER"
	configName   = "flathub-filter"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flathub-filter",
	Short: "Maintains the list of Flathub components allowed in Fedora",
	Long: `flathub-filter maintains apps.txt, other.txt and filter.txt: the Flathub components
reviewed for inclusion in Fedora, and the flatpak filter generated from the review.

The data files are regenerated from cached upstream data: download statistics always come
from upstream, while the "Include" and "Comments" fields are edited by reviewers.

Branches editing the data files are rebased and merged with the rebase and merge commands,
which regenerate the data at every step instead of letting git conflict on download counts.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		params.setDefaultsFromConfig(config)
		var err error
		if logger, err = dlogger.GetLogger(params.logLevel()); err != nil {
			wrapFatalln("invalid log level", err)
			return
		}
	},
}

var (
	config *CLIConfig
	logger = zap.NewNop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errorln(err.Error())
		osExit(ExitFailure)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	addRepoFlag(rootCmd)
	addCacheDirFlag(rootCmd)
	addScratchDirFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addVerboseFlag(rootCmd)
	addQuietFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.Reset()
	viper.SetDefault(keyCacheDir, "")
	viper.SetDefault(keyScratchDir, "")
	viper.SetDefault(keyRemote, defaultRemote)
	viper.SetDefault(keyIntegrationBranch, defaultIntegrationBranch)
	viper.SetDefault(keyPullRefspec, defaultPullRefspec)
	viper.SetDefault(keyLogLevel, dlogger.LogLevelInfo)

	if os.Getenv(configEnv) != "" {
		viper.SetConfigFile(os.Getenv(configEnv))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.flathub-filter")
		viper.SetConfigName(configName)
	}
	viper.SetEnvPrefix(configPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			wrapFatalln("cannot read configuration", err)
			return
		}
	}

	var err error
	if config, err = newConfig(); err != nil {
		wrapFatalln("cannot decode configuration", err)
		return
	}
}
