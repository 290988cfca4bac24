package model

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
)

// Tracked artifacts
const (
	// AppsFile lists applications
	AppsFile = "apps.txt"

	// OtherFile lists runtimes and extensions
	OtherFile = "other.txt"

	// FilterFile is the generated filter
	FilterFile = "filter.txt"
)

// TrackedArtifacts is the ordered set of data files which are regenerated from upstream.
// They are always replaced together.
var TrackedArtifacts = []string{AppsFile, OtherFile, FilterFile}

// RecordArtifacts are the tracked artifacts holding component records
var RecordArtifacts = []string{AppsFile, OtherFile}

// IsTracked tells if a repository path is one of the tracked artifacts
func IsTracked(p string) bool {
	for _, tracked := range TrackedArtifacts {
		if p == tracked {
			return true
		}
	}
	return false
}

const (
	requestBranchPrefix = "merge_pr_"

	// stateDir is located inside the git directory, so it never shows up in the working tree
	stateDir       = "flathub-filter"
	stateFile      = "state.yaml"
	indexPrefix    = "index-"
	upstreamPrefix = "flathub"
	fedoraPrefix   = "fedora"
)

var requestBranchRe = regexp.MustCompile(`^` + requestBranchPrefix + `([0-9]+)$`)

// RequestBranch names the working branch for a pull request
func RequestBranch(request int) string {
	return requestBranchPrefix + strconv.Itoa(request)
}

// ParseRequestBranch recovers the request identifier from a working branch name
func ParseRequestBranch(branch string) (int, bool) {
	m := requestBranchRe.FindStringSubmatch(branch)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GetPathToState returns the path to the resume token, relative to the git directory
func GetPathToState() string {
	return path.Join(stateDir, stateFile)
}

// GetPathToIndex returns the path to a private index file for some run, relative to the git directory
func GetPathToIndex(runID string) string {
	return path.Join(stateDir, indexPrefix+runID)
}

// GetPathToRemoteList returns the cached "flatpak remote-ls" output for some remote
func GetPathToRemoteList(remote string) string {
	return remote + "-remote-ls.txt"
}

// GetPathToMetadata returns the cached component metadata for some remote
func GetPathToMetadata(remote string) string {
	return remote + "-metadata.yaml"
}

// GetPathToDownloads returns the cached daily download statistics
func GetPathToDownloads(year, month, day int) string {
	return fmt.Sprintf("%s-downloads-%04d-%02d-%02d.json", upstreamPrefix, year, month, day)
}

// UpstreamRemote is the short name of the catalog providing download statistics
func UpstreamRemote() string {
	return upstreamPrefix
}

// FedoraRemote is the short name of the registry providing Fedora flatpaks
func FedoraRemote() string {
	return fedoraPrefix
}
