package cmd

import (
	"os"
	"path/filepath"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/record"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Regenerates the data files from the cached upstream data",
	Long: `Regenerates apps.txt, other.txt and filter.txt.

Download statistics, names, homepages and licenses come from the cached upstream data.
The Include and Comments fields are read from the input directory, then the editorial
changes made from --delta-from-dir to --delta-to-dir are applied on top.

Components which are no longer published upstream are dropped.
`,
	Example: `# refresh the data files of the current directory
flathub-filter update

# replay the editorial changes of a commit onto other data files
flathub-filter update --input-dir last --delta-from-dir parent --delta-to-dir commit --output-dir out`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		dirs := catalog.Dirs{
			Input:     params.update.inputDir,
			DeltaFrom: params.update.deltaFromDir,
			DeltaTo:   params.update.deltaToDir,
			Output:    params.update.outputDir,
		}
		if dirs.Input == "" {
			dirs.Input = params.root.repoDir
		}
		if dirs.Output == "" {
			dirs.Output = params.root.repoDir
		}

		gen, err := loadGenerator()
		if err != nil {
			wrapFatalln("cannot load the upstream data", err)
			return
		}

		fs := afero.NewOsFs()
		filterPath := filepath.Join(dirs.Output, model.FilterFile)
		before, err := afero.ReadFile(fs, filterPath)
		if err != nil && !os.IsNotExist(err) {
			wrapFatalln("cannot read the current filter", err)
			return
		}

		report, err := gen.Regenerate(ctx, fs, dirs)
		if err != nil {
			wrapFatalln("cannot regenerate the data files", err)
			return
		}
		for _, id := range report.Dropped {
			warningf("%s was edited but is not published upstream: dropped", id)
		}
		infof("wrote %d apps and %d other components to %s, %d allowed by the filter",
			report.Apps, report.Others, dirs.Output, len(report.Allowed))

		if !params.update.diff {
			return
		}
		after, err := afero.ReadFile(fs, filterPath)
		if err != nil {
			wrapFatalln("cannot read the new filter", err)
			return
		}
		diff, err := record.UnifiedDiff("a/"+model.FilterFile, "b/"+model.FilterFile, before, after)
		if err != nil {
			wrapFatalln("cannot diff the filter", err)
			return
		}
		outf("%s", diff)
	},
}

func init() {
	addInputDirFlag(updateCmd)
	addOutputDirFlag(updateCmd)
	from := addDeltaFromDirFlag(updateCmd)
	to := addDeltaToDirFlag(updateCmd)
	addUpdateDiffFlag(updateCmd)
	updateCmd.MarkFlagsRequiredTogether(from, to)

	rootCmd.AddCommand(updateCmd)
}
