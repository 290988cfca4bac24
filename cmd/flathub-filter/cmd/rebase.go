package cmd

import (
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"github.com/spf13/cobra"
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase [<target> | --continue | --abort]",
	Short: "Rebases the current branch, regenerating the data files",
	Long: `Rebases the current branch onto a target revision.

Every commit of the branch is replayed on top of data files regenerated from the cached
upstream data: the reviewers' edits to the Include and Comments fields are merged record by
record, download statistics come from upstream, and other files are applied as they are.
The branch is then rebased onto the target, whose data files are refreshed by a first commit.

The branch is left untouched until every commit is replayed. When git cannot apply a
change, the run pauses with exit code 75: resolve the conflicts, stage the files, and run
"flathub-filter rebase --continue", or give up with "flathub-filter rebase --abort".
`,
	Example: `flathub-filter rebase origin/main`,
	Args:    cobra.MaximumNArgs(1),
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

		if params.run.cont || params.run.abort {
			if err = checkPausedMode(ctx, ctrl, model.ModeRebase); err != nil {
				wrapFatalln("cannot resume", err)
				return
			}
		}

		var res *rebase.Result
		switch {
		case params.run.abort:
			tok, err := ctrl.Abort(ctx)
			if err != nil {
				wrapFatalln("cannot abort the rebase", err)
				return
			}
			infof("rebase aborted, %s is back to %s", tok.Branch, model.ShortID(tok.OriginalTip))
			return
		case params.run.cont:
			res, err = ctrl.Continue(ctx)
		default:
			res, err = ctrl.Start(ctx, rebase.Request{Mode: model.ModeRebase, Target: args[0]})
		}
		if err != nil {
			exitOnRunError("rebase failed", err, "rebase")
			return
		}
		infof("rebased %s onto %s: %d commits rewritten, %d skipped, now at %s",
			res.Token.Branch, model.ShortID(res.Token.Target), res.Rewritten, len(res.Token.Skipped), model.ShortID(res.Tip))
	},
}

// checkRunArgs checks that a rebase or merge is either started, continued or aborted
func checkRunArgs(args []string) error {
	switch {
	case params.run.cont && params.run.abort:
		return errors.New("--continue and --abort are mutually exclusive")
	case (params.run.cont || params.run.abort) && len(args) > 0:
		return errors.New("no argument expected with --continue or --abort")
	case !params.run.cont && !params.run.abort && len(args) == 0:
		return errors.New("expected an argument, --continue or --abort")
	default:
		return nil
	}
}

// checkPausedMode checks that the paused run was started by the same command
func checkPausedMode(ctx context.Context, ctrl *rebase.Controller, mode model.Mode) error {
	tok, err := ctrl.Paused(ctx)
	if err != nil {
		return err
	}
	if tok.Mode != mode {
		return status.ErrOperationInProgress.WrapMessage("the paused run was started by %q, use flathub-filter %s", tok.Mode, tok.Mode)
	}
	return nil
}

func init() {
	addContinueFlag(rebaseCmd)
	addAbortFlag(rebaseCmd)
	rootCmd.AddCommand(rebaseCmd)
}
