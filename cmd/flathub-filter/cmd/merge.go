package cmd

import (
	"strconv"

	"github.com/fedora-flatpak/flathub-filter/pkg/merge"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [<request> | --continue | --abort]",
	Short: "Merges a pull request, regenerating the data files",
	Long: `Merges a pull request into the integration branch.

The request is fetched into a merge_pr_<request> branch, rebased onto the integration
branch as "flathub-filter rebase" does, then merged with a merge commit titled
"Merge #<request>: <title>". The working branch is deleted afterwards, and the command to
push the integration branch is printed: nothing is pushed.

The integration branch must be checked out, clean, and up to date with the remote.
When the rebase pauses on a conflict, resolve it, stage the files, and run
"flathub-filter merge --continue", or give up with "flathub-filter merge --abort".
`,
	Example: `flathub-filter merge 42
flathub-filter merge 42 --title "Include org.gnome.Recipes"`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := checkRunArgs(args); err != nil {
			wrapFatalln("invalid arguments", err)
			return
		}
		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("cannot open the repository", err)
			return
		}
		ctrl, err := newController(repo, !params.run.abort)
		if err != nil {
			wrapFatalln("cannot load the upstream data", err)
			return
		}
		m := newMerger(repo, ctrl)

		var res *merge.Result
		switch {
		case params.run.abort:
			request, err := m.Abort(ctx)
			if err != nil {
				wrapFatalln("cannot abort the merge", err)
				return
			}
			infof("merge of #%d aborted, back on %s", request, m.IntegrationBranch())
			return
		case params.run.cont:
			res, err = m.Continue(ctx)
		default:
			request, perr := parseRequest(args[0])
			if perr != nil {
				wrapFatalln("invalid request", perr)
				return
			}
			res, err = m.Start(ctx, request, params.merge.title)
		}
		if err != nil {
			exitOnRunError("merge failed", err, "merge")
			return
		}
		infof("merged #%d into %s as %s: %q", res.Request, m.IntegrationBranch(), model.ShortID(res.Merge), res.Title)
		infof("review the result, then publish it with: %s", res.Push)
	},
}

func parseRequest(arg string) (int, error) {
	request, err := strconv.Atoi(arg)
	if err != nil || request <= 0 {
		return 0, status.ErrAmbiguousRequest.WrapMessage("%q is not a pull request number", arg)
	}
	return request, nil
}

func init() {
	addContinueFlag(mergeCmd)
	addAbortFlag(mergeCmd)
	addTitleFlag(mergeCmd)
	addRemoteFlag(mergeCmd)
	addIntegrationBranchFlag(mergeCmd)
	addPullRefspecFlag(mergeCmd)
	rootCmd.AddCommand(mergeCmd)
}
