package cmd

import (
	"github.com/fedora-flatpak/flathub-filter/pkg/merge"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// configuration keys
const (
	keyCacheDir          = "cache-dir"
	keyScratchDir        = "scratch-dir"
	keyRemote            = "remote"
	keyIntegrationBranch = "integration-branch"
	keyPullRefspec       = "pull-refspec"
	keyLogLevel          = "loglevel"

	defaultRemote            = merge.DefaultRemote
	defaultIntegrationBranch = merge.DefaultIntegrationBranch
	defaultPullRefspec       = merge.DefaultPullRefspec
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	CacheDir          string `json:"cache-dir" yaml:"cache-dir" mapstructure:"cache-dir"`                            // cached upstream data
	ScratchDir        string `json:"scratch-dir" yaml:"scratch-dir" mapstructure:"scratch-dir"`                      // temporary snapshots
	Remote            string `json:"remote" yaml:"remote" mapstructure:"remote"`                                     // remote hosting pull requests
	IntegrationBranch string `json:"integration-branch" yaml:"integration-branch" mapstructure:"integration-branch"` // branch requests are merged into
	PullRefspec       string `json:"pull-refspec" yaml:"pull-refspec" mapstructure:"pull-refspec"`                   // remote ref of a request, with {id}
	LogLevel          string `json:"loglevel" yaml:"loglevel" mapstructure:"loglevel"`
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to inspect the configuration",
	Long: `Commands to inspect the flathub-filter configuration.

The configuration is read from flathub-filter.yaml in the current directory or in
$HOME/.flathub-filter, or from the file named by FLATHUB_FILTER_CONFIG.
Every key may be overridden by an environment variable, e.g. FLATHUB_FILTER_CACHE_DIR,
and flags take precedence over both.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Prints the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		effective := CLIConfig{
			CacheDir:          params.cacheDir(),
			ScratchDir:        params.scratchDir(),
			Remote:            params.merge.remote,
			IntegrationBranch: params.merge.integrationBranch,
			PullRefspec:       params.merge.pullRefspec,
			LogLevel:          params.logLevel(),
		}
		buf, err := yaml.Marshal(effective)
		if err != nil {
			wrapFatalln("cannot render configuration", err)
			return
		}
		if used := viper.ConfigFileUsed(); used != "" {
			outf("# %s\n", used)
		}
		outf("%s", buf)
	},
}

func init() {
	configCmd.AddCommand(configDumpCmd)
	rootCmd.AddCommand(configCmd)
}
