package cmd

import (
	"bytes"
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/record"
	"github.com/spf13/cobra"
)

var deltaCmd = &cobra.Command{
	Use:   "delta <from> <to>",
	Short: "Prints the editorial changes between two revisions",
	Long: `Prints the changes made by reviewers to the Include and Comments fields of the data
files between two revisions, one line per changed record.

With --diff, the unified diff of the filter between both revisions follows.
`,
	Example: `# what a pull request decides
flathub-filter delta main merge_pr_42 --diff`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("cannot open the repository", err)
			return
		}
		from, err := componentsAt(ctx, repo, args[0])
		if err != nil {
			wrapFatalln("cannot read the data files of "+args[0], err)
			return
		}
		to, err := componentsAt(ctx, repo, args[1])
		if err != nil {
			wrapFatalln("cannot read the data files of "+args[1], err)
			return
		}

		delta := record.EditorialDiff(from, to)
		if delta.IsEmpty() {
			infof("no editorial change")
		} else {
			outf("%s", delta.String())
		}

		if !params.delta.diff {
			return
		}
		before, _, err := repo.ShowBlob(ctx, args[0], model.FilterFile)
		if err != nil {
			wrapFatalln("cannot read the filter of "+args[0], err)
			return
		}
		after, _, err := repo.ShowBlob(ctx, args[1], model.FilterFile)
		if err != nil {
			wrapFatalln("cannot read the filter of "+args[1], err)
			return
		}
		diff, err := record.UnifiedDiff(args[0]+":"+model.FilterFile, args[1]+":"+model.FilterFile, before, after)
		if err != nil {
			wrapFatalln("cannot diff the filter", err)
			return
		}
		outf("%s", diff)
	},
}

// componentsAt parses the record artifacts found at some revision
func componentsAt(ctx context.Context, repo *git.Repo, rev string) (model.Components, error) {
	components := make(model.Components)
	for _, name := range model.RecordArtifacts {
		content, found, err := repo.ShowBlob(ctx, rev, name)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if err = record.Parse(bytes.NewReader(content), rev+":"+name, components); err != nil {
			return nil, err
		}
	}
	return components, nil
}

func init() {
	addDeltaDiffFlag(deltaCmd)
	rootCmd.AddCommand(deltaCmd)
}
