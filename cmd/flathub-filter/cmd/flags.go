package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/dlogger"
	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/merge"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const cacheDirName = "cache"

type flagsT struct {
	root struct {
		repoDir    string
		cacheDir   string
		scratchDir string
		logLevel   string
		verbose    bool
		quiet      bool
	}
	update struct {
		inputDir     string
		outputDir    string
		deltaFromDir string
		deltaToDir   string
		diff         bool
	}
	run struct {
		cont  bool
		abort bool
	}
	merge struct {
		title             string
		remote            string
		integrationBranch string
		pullRefspec       string
	}
	delta struct {
		diff bool
	}
}

var params = flagsT{}

func addRepoFlag(cmd *cobra.Command) string {
	repo := "repo"
	cmd.PersistentFlags().StringVarP(&params.root.repoDir, repo, "C", ".", "The git working tree holding the data files")
	return repo
}

func addCacheDirFlag(cmd *cobra.Command) string {
	cacheDir := keyCacheDir
	cmd.PersistentFlags().StringVar(&params.root.cacheDir, cacheDir, "",
		"Directory holding the cached upstream data. Defaults to the cache directory of the repository")
	return cacheDir
}

func addScratchDirFlag(cmd *cobra.Command) string {
	scratchDir := keyScratchDir
	cmd.PersistentFlags().StringVar(&params.root.scratchDir, scratchDir, "",
		"Directory for temporary snapshots of the data files. Defaults to the system temporary directory")
	return scratchDir
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := keyLogLevel
	cmd.PersistentFlags().StringVar(&params.root.logLevel, logLevel, "", "The logging level: debug, info, warn, error or none")
	return logLevel
}

func addVerboseFlag(cmd *cobra.Command) string {
	verbose := "verbose"
	cmd.PersistentFlags().BoolVarP(&params.root.verbose, verbose, "v", false, "Show debug messages")
	return verbose
}

func addQuietFlag(cmd *cobra.Command) string {
	quiet := "quiet"
	cmd.PersistentFlags().BoolVarP(&params.root.quiet, quiet, "q", false, "Suppress non-critical messages")
	return quiet
}

func addInputDirFlag(cmd *cobra.Command) string {
	inputDir := "input-dir"
	cmd.Flags().StringVar(&params.update.inputDir, inputDir, "", "Directory to read the data files from. Defaults to the repository")
	return inputDir
}

func addOutputDirFlag(cmd *cobra.Command) string {
	outputDir := "output-dir"
	cmd.Flags().StringVar(&params.update.outputDir, outputDir, "", "Directory to write the data files to. Defaults to the repository")
	return outputDir
}

func addDeltaFromDirFlag(cmd *cobra.Command) string {
	deltaFrom := "delta-from-dir"
	cmd.Flags().StringVar(&params.update.deltaFromDir, deltaFrom, "", "Add the editorial changes from this directory to --delta-to-dir")
	return deltaFrom
}

func addDeltaToDirFlag(cmd *cobra.Command) string {
	deltaTo := "delta-to-dir"
	cmd.Flags().StringVar(&params.update.deltaToDir, deltaTo, "", "Add the editorial changes from --delta-from-dir to this directory")
	return deltaTo
}

func addUpdateDiffFlag(cmd *cobra.Command) string {
	diff := "diff"
	cmd.Flags().BoolVar(&params.update.diff, diff, false, "Print the changes made to the filter")
	return diff
}

func addContinueFlag(cmd *cobra.Command) string {
	cont := "continue"
	cmd.Flags().BoolVar(&params.run.cont, cont, false, "Resume the paused run, once conflicts are resolved and staged")
	return cont
}

func addAbortFlag(cmd *cobra.Command) string {
	abort := "abort"
	cmd.Flags().BoolVar(&params.run.abort, abort, false, "Cancel the paused run and restore the original branch")
	return abort
}

func addTitleFlag(cmd *cobra.Command) string {
	title := "title"
	cmd.Flags().StringVar(&params.merge.title, title, "", "Title of the merge commit. Defaults to the subject of the request's last commit")
	return title
}

func addRemoteFlag(cmd *cobra.Command) string {
	remote := keyRemote
	cmd.Flags().StringVar(&params.merge.remote, remote, "", "The remote hosting pull requests")
	return remote
}

func addIntegrationBranchFlag(cmd *cobra.Command) string {
	branch := keyIntegrationBranch
	cmd.Flags().StringVar(&params.merge.integrationBranch, branch, "", "The branch requests are merged into")
	return branch
}

func addPullRefspecFlag(cmd *cobra.Command) string {
	refspec := keyPullRefspec
	cmd.Flags().StringVar(&params.merge.pullRefspec, refspec, "", `The remote ref of a request, "{id}" standing for its identifier`)
	return refspec
}

func addDeltaDiffFlag(cmd *cobra.Command) string {
	diff := "diff"
	cmd.Flags().BoolVar(&params.delta.diff, diff, false, "Also print the unified diff of the filter")
	return diff
}

// setDefaultsFromConfig fills the flags left unset with configured values
func (flags *flagsT) setDefaultsFromConfig(c *CLIConfig) {
	if c == nil {
		c = &CLIConfig{}
	}
	if flags.root.cacheDir == "" {
		flags.root.cacheDir = c.CacheDir
	}
	if flags.root.scratchDir == "" {
		flags.root.scratchDir = c.ScratchDir
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
	if flags.merge.remote == "" {
		flags.merge.remote = c.Remote
	}
	if flags.merge.integrationBranch == "" {
		flags.merge.integrationBranch = c.IntegrationBranch
	}
	if flags.merge.pullRefspec == "" {
		flags.merge.pullRefspec = c.PullRefspec
	}
}

func (flags *flagsT) logLevel() string {
	switch {
	case flags.root.verbose:
		return dlogger.LogLevelDebug
	case flags.root.quiet:
		return dlogger.LogLevelWarn
	case flags.root.logLevel != "":
		return flags.root.logLevel
	default:
		return dlogger.LogLevelInfo
	}
}

func (flags *flagsT) cacheDir() string {
	if flags.root.cacheDir != "" {
		return flags.root.cacheDir
	}
	return filepath.Join(flags.root.repoDir, cacheDirName)
}

func (flags *flagsT) scratchDir() string {
	if flags.root.scratchDir != "" {
		return flags.root.scratchDir
	}
	return filepath.Join(os.TempDir(), "flathub-filter")
}

func openRepo(ctx context.Context) (*git.Repo, error) {
	return git.Open(ctx, params.root.repoDir, git.Logger(logger))
}

func loadGenerator() (*catalog.Generator, error) {
	fs := afero.NewOsFs()
	upstream, err := catalog.LoadUpstream(fs, params.cacheDir(), catalog.Logger(logger))
	if err != nil {
		return nil, err
	}
	return catalog.NewGenerator(upstream, catalog.Logger(logger)), nil
}

// newController builds a rebase controller. The upstream catalog is only loaded when a
// run may regenerate data.
func newController(repo *git.Repo, regenerate bool) (*rebase.Controller, error) {
	var regen rebase.Regenerator
	if regenerate {
		gen, err := loadGenerator()
		if err != nil {
			return nil, err
		}
		regen = gen
	}
	return rebase.New(repo, regen,
		rebase.Logger(logger),
		rebase.Scratch(afero.NewOsFs(), params.scratchDir()),
	), nil
}

func newMerger(repo *git.Repo, ctrl *rebase.Controller) *merge.Merger {
	return merge.New(repo, ctrl,
		merge.Logger(logger),
		merge.Remote(params.merge.remote),
		merge.IntegrationBranch(params.merge.integrationBranch),
		merge.PullRefspec(params.merge.pullRefspec),
	)
}
