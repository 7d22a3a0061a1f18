// Package workspace prepares per-build working copies with go-git
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/types"
)

// ErrCheckout indicates the working copy could not be prepared
var ErrCheckout = errors.New("checkout failed")

// commitPattern matches full and abbreviated commit hashes
var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

// Manager creates and removes build directories below a root directory
type Manager struct {
	root  string
	depth int
	log   logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithDepth limits clones to the given number of commits; 0 clones everything
func WithDepth(depth int) Option {
	return func(m *Manager) {
		m.depth = depth
	}
}

// NewManager creates a workspace manager rooted at root
func NewManager(root string, log logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{root: root, log: log.WithScope("workspace")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the working directory used for a build
func (m *Manager) Path(rec *build.Record) string {
	return filepath.Join(m.root, fmt.Sprintf("project-%d", rec.ProjectID()), fmt.Sprintf("build-%d", rec.ID()))
}

// Checkout clones project into the build directory. The tag is preferred
// over the branch; a commit_id on the record is checked out afterwards.
// The resolved commit, committer email, commit message and branch are
// written back to the record.
func (m *Manager) Checkout(ctx context.Context, project types.Project, rec *build.Record) (string, error) {
	path := m.Path(rec)
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("%w: failed to clean %s: %v", ErrCheckout, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCheckout, err)
	}

	branch := project.Branch(rec.Branch())
	ref := plumbing.NewBranchReferenceName(branch)
	if tag := rec.Tag(); tag != "" {
		ref = plumbing.NewTagReferenceName(tag)
	}

	opts := &git.CloneOptions{
		URL:           project.Reference,
		ReferenceName: ref,
		SingleBranch:  true,
	}
	if m.depth > 0 && rec.CommitID() == "" {
		opts.Depth = m.depth
	}

	m.log.Info("Cloning repository",
		logger.WithField("reference", project.Reference),
		logger.WithField("ref", ref.String()),
		logger.WithField("path", path))

	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		_ = os.RemoveAll(path)
		return "", fmt.Errorf("%w: clone %s (%s): %v", ErrCheckout, project.Reference, ref.Short(), err)
	}

	hash, err := m.resolve(repo, rec.CommitID())
	if err != nil {
		_ = os.RemoveAll(path)
		return "", err
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		_ = os.RemoveAll(path)
		return "", fmt.Errorf("%w: read commit %s: %v", ErrCheckout, hash, err)
	}

	rec.SetCommitID(hash.String())
	rec.SetCommitterEmail(commit.Committer.Email)
	rec.SetCommitMessage(strings.TrimSpace(commit.Message))
	if rec.Branch() == "" && rec.Tag() == "" {
		rec.SetBranch(branch)
	}

	m.log.Info("Checked out commit", logger.WithField("commit", shortHash(hash)))
	return path, nil
}

func (m *Manager) resolve(repo *git.Repository, commitID string) (plumbing.Hash, error) {
	if commitID == "" {
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("%w: resolve HEAD: %v", ErrCheckout, err)
		}
		return head.Hash(), nil
	}

	if !commitPattern.MatchString(commitID) {
		return plumbing.ZeroHash, fmt.Errorf("%w: %q is not a commit hash", ErrCheckout, commitID)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(commitID))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: commit %s not found on the cloned ref: %v", ErrCheckout, commitID, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %v", ErrCheckout, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *resolved}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: checkout %s: %v", ErrCheckout, commitID, err)
	}
	return *resolved, nil
}

// Remove deletes a build directory. Paths outside the root are refused.
func (m *Manager) Remove(path string) error {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside workspace %s", path, m.root)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	m.log.Debug("Removed workspace", logger.WithField("path", path))
	return nil
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
