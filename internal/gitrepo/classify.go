package gitrepo

import "strings"

type FailureKind int

const (
	FailureUnclassified FailureKind = iota
	FailureEmptyRemote
	FailureDivergence
	FailureRemoteUnreachable
	FailureNothingToCommit
)

func (k FailureKind) String() string {
	switch k {
	case FailureEmptyRemote:
		return "empty-remote"
	case FailureDivergence:
		return "divergence"
	case FailureRemoteUnreachable:
		return "remote-unreachable"
	case FailureNothingToCommit:
		return "nothing-to-commit"
	default:
		return "unclassified"
	}
}

// Classifier maps a git error message to a failure kind. The mapping depends
// on git's wording, so it is injected rather than hard-wired into callers.
type Classifier func(msg string) FailureKind

// Patterns are matched case-insensitively, in the order of the kinds below.
var (
	nothingToCommitPatterns = []string{
		"nothing to commit",
		"nothing added to commit",
		"no changes added to commit",
	}

	emptyRemotePatterns = []string{
		"couldn't find remote ref",
		"no such ref was fetched",
	}

	unreachablePatterns = []string{
		"could not resolve host",
		"could not read from remote repository",
		"authentication failed",
		"unable to access",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"permission denied (publickey",
		"repository not found",
		"does not appear to be a git repository",
		"could not read username",
		"terminal prompts disabled",
	}

	divergencePatterns = []string{
		"divergent branches",
		"have diverged",
		"need to specify how to reconcile",
		"could not apply",
		"conflict (",
		"merge conflict",
		"unmerged",
		"unresolved",
		"resolve your current index",
		"index.lock",
		"another git process seems to be running",
		"rebase-merge",
		"rebase-apply",
		"already a rebase",
		"in the middle of",
		"cannot pull with rebase",
		"cannot rebase",
		"would be overwritten",
		"index file corrupt",
		"bad index",
		"non-fast-forward",
		"fetch first",
	}
)

func Classify(msg string) FailureKind {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, nothingToCommitPatterns):
		return FailureNothingToCommit
	case containsAny(lower, emptyRemotePatterns):
		return FailureEmptyRemote
	case containsAny(lower, unreachablePatterns):
		return FailureRemoteUnreachable
	case containsAny(lower, divergencePatterns):
		return FailureDivergence
	default:
		return FailureUnclassified
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
