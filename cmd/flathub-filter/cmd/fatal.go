package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1

	// ExitPaused reports a run paused on a conflict, to be continued or aborted
	ExitPaused = 75
)

var (
	// globals used to patch over calls to os.Exit() and console output during test

	osExit           = os.Exit
	stdout io.Writer = color.Output
	stderr io.Writer = color.Error

	infoPrefix    = color.New(color.FgBlue, color.Bold).Sprint("INFO")
	warningPrefix = color.New(color.FgRed, color.Bold).Sprint("WARNING")
	errorPrefix   = color.New(color.FgRed, color.Bold).Sprint("ERROR")
)

// outf writes command output
func outf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(stdout, format, args...)
}

func infof(format string, args ...interface{}) {
	if params.root.quiet {
		return
	}
	_, _ = fmt.Fprintf(stderr, infoPrefix+": "+format+"\n", args...)
}

// hintf prints a line the operator needs to go on, even when quiet
func hintf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(stderr, infoPrefix+": "+format+"\n", args...)
}

func warningf(format string, args ...interface{}) {
	if params.root.quiet {
		return
	}
	_, _ = fmt.Fprintf(stderr, warningPrefix+": "+format+"\n", args...)
}

func errorln(msg string) {
	_, _ = fmt.Fprintln(stderr, errorPrefix+": "+msg)
}

func wrapFatalln(msg string, err error) {
	if err == nil {
		errorln(msg)
	} else {
		errorln(fmt.Sprintf("%s: %v", msg, err))
	}
	osExit(ExitFailure)
}

// exitPaused reports a paused run, with the commands to resume it
func exitPaused(err error, command string) {
	errorln(err.Error())
	hintf("resolve the conflicts and stage the files, then run: flathub-filter %s --continue", command)
	hintf("to give up and restore the branch, run: flathub-filter %s --abort", command)
	osExit(ExitPaused)
}

// exitOnRunError terminates a rebase or merge which failed or paused
func exitOnRunError(msg string, err error, command string) {
	if status.IsResumable(err) {
		exitPaused(err, command)
		return
	}
	wrapFatalln(msg, err)
}
