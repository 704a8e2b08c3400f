package pfs

import (
	"fmt"
	"strings"

	"github.com/labelworks/pachstore/common"
)

// Ref identifies a branch (or pinned commit) of a repository within a project.
type Ref struct {
	Project    string
	Repository string
	Branch     string
	Commit     string
}

// ParseRef splits a "repo@branch" string into a Ref. A missing branch
// defaults to master, a missing project to the default project.
func ParseRef(raw string) Ref {
	repo, branch, _ := strings.Cut(raw, "@")
	if branch == "" {
		branch = common.DefaultBranch
	}
	project := common.DefaultProject
	if p, r, ok := strings.Cut(repo, "/"); ok {
		project = p
		repo = r
	}
	return Ref{
		Project:    project,
		Repository: repo,
		Branch:     branch,
	}
}

// String returns the canonical "repo@branch" form. It is used both as the
// mount-point directory name and as the mount registry value, so it must
// round-trip through ParseRef.
func (r Ref) String() string {
	return fmt.Sprintf("%s@%s", r.Repository, r.Branch)
}

// URI returns the fully qualified form understood by the direct API,
// "project/repo@branch" or "project/repo@commit" when pinned.
func (r Ref) URI() string {
	ref := r.Branch
	if r.Commit != "" {
		ref = r.Commit
	}
	return fmt.Sprintf("%s/%s@%s", r.Project, r.Repository, ref)
}

// Pinned returns a copy of the ref fixed to the given commit.
func (r Ref) Pinned(commit string) Ref {
	r.Commit = commit
	return r
}

// Equal reports whether two refs address the same branch of the same
// repository, ignoring any pinned commit.
func (r Ref) Equal(other Ref) bool {
	return r.Project == other.Project &&
		r.Repository == other.Repository &&
		r.Branch == other.Branch
}
