// Package gitrepo implements the publish side of a run: staging the
// generated output directory, committing it under a fixed committer
// identity, and pushing to the checked-out branch.
//
// This package wraps Git CLI commands (via os/exec) rather than using a
// Go Git library (e.g., go-git), for full Git CLI compatibility —
// credential helpers, hooks, and transport configuration all behave
// exactly as they do for the user's own git invocations.
//
// All errors from Git commands are wrapped in model.CLIError with
// ExitGitError to enable proper CLI exit code handling.
package gitrepo

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/regen/internal/model"
)

// PublishOptions carries the settings for one Publish call. They are
// derived from the workflow's publish block plus the run's identity.
type PublishOptions struct {
	// Message is the fully rendered commit message (placeholders
	// already expanded).
	Message string

	// CommitterName and CommitterEmail form the committer identity.
	// They are passed per-invocation via `git -c`; no git config is
	// ever modified.
	CommitterName  string
	CommitterEmail string

	// Branch is the branch to push. Empty means the currently
	// checked-out branch.
	Branch string

	// Remote is the remote to push to (e.g. "origin").
	Remote string

	// AllowEmpty creates the commit even when nothing changed,
	// via `git commit --allow-empty`.
	AllowEmpty bool

	// Push controls whether the commit is pushed after creation.
	Push bool
}

// PublishResult reports what the publish step actually did.
type PublishResult struct {
	// Published is true when a commit was created.
	Published bool

	// CommitSHA is the SHA of the created commit, when Published.
	CommitSHA string

	// Pushed is true when the commit was pushed to the remote.
	Pushed bool
}

// Publisher provides Git publishing operations for a single repository.
// All methods invoke the git CLI with `-C repoPath`, so the process's
// working directory never changes.
type Publisher struct {
	// repoPath is the absolute path to the repository root.
	repoPath string
}

// NewPublisher creates a Publisher for the repository at repoPath.
func NewPublisher(repoPath string) *Publisher {
	return &Publisher{repoPath: repoPath}
}

// RepoRoot returns the absolute path to the top-level directory of the
// Git repository containing the given path.
//
// Uses `git rev-parse --show-toplevel`, which works from any
// subdirectory of the working tree.
func RepoRoot(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the name of the currently checked-out branch.
//
// Uses `git rev-parse --abbrev-ref HEAD` which returns the short branch
// name (e.g., "main"). Returns "HEAD" if the repository is in a
// detached HEAD state.
func (p *Publisher) CurrentBranch() (string, error) {
	output, err := runGit(p.repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HeadSHA returns the full SHA of the current HEAD commit.
func (p *Publisher) HeadSHA() (string, error) {
	output, err := runGit(p.repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HasChanges reports whether the given directory (relative to the repo
// root) contains staged, unstaged, or untracked changes.
//
// Uses `git status --porcelain -- <dir>`: any output line means a
// change. Untracked files count, because a generator writing a brand-new
// output file is exactly the change a publish run exists to record.
func (p *Publisher) HasChanges(dir string) (bool, error) {
	output, err := runGit(p.repoPath, "status", "--porcelain", "--", dir)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Stage adds the given directory (and everything under it) to the index.
// Uses `git add -A -- <dir>` so deletions of previously generated files
// are staged too, keeping the committed directory an exact mirror of
// what the generator produced.
func (p *Publisher) Stage(dir string) error {
	_, err := runGit(p.repoPath, "add", "-A", "--", dir)
	return err
}

// Commit creates a commit with the given message under the given
// committer identity. The identity is injected with `-c user.name` and
// `-c user.email`, which also sets the author, so the repository's and
// user's git configuration are left untouched.
//
// When allowEmpty is true, `--allow-empty` is passed so the commit
// succeeds even with a clean index.
func (p *Publisher) Commit(message, name, email string, allowEmpty bool) error {
	args := []string{
		"-c", "user.name=" + name,
		"-c", "user.email=" + email,
		"commit", "-m", message,
	}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	_, err := runGit(p.repoPath, args...)
	return err
}

// Push pushes the given branch to the given remote. An empty branch
// pushes the current HEAD (`git push <remote> HEAD`), matching the
// behavior of pushing from a checkout without naming the branch.
//
// There is no conflict handling: a rejected push (non-fast-forward,
// auth failure) fails the run. See DESIGN.md for the decision record.
func (p *Publisher) Push(remote, branch string) error {
	ref := branch
	if ref == "" {
		ref = "HEAD"
	}
	_, err := runGit(p.repoPath, "push", remote, ref)
	return err
}

// Publish runs the full publish sequence for the output directory:
//
//  1. Check the directory for changes; with no changes and AllowEmpty
//     disabled, skip the commit entirely and report Published=false.
//  2. Stage the directory.
//  3. Commit under the configured identity.
//  4. Push, unless opts.Push is false.
//
// The no-change short-circuit exists because `git commit` fails on an
// empty index; a generator run that reproduces identical outputs is a
// normal outcome, not an error.
func (p *Publisher) Publish(dir string, opts PublishOptions) (PublishResult, error) {
	changed, err := p.HasChanges(dir)
	if err != nil {
		return PublishResult{}, err
	}

	if !changed && !opts.AllowEmpty {
		return PublishResult{Published: false}, nil
	}

	if err := p.Stage(dir); err != nil {
		return PublishResult{}, err
	}

	if err := p.Commit(opts.Message, opts.CommitterName, opts.CommitterEmail, opts.AllowEmpty); err != nil {
		return PublishResult{}, err
	}

	sha, err := p.HeadSHA()
	if err != nil {
		return PublishResult{}, err
	}

	result := PublishResult{Published: true, CommitSHA: sha}

	if opts.Push {
		if err := p.Push(opts.Remote, opts.Branch); err != nil {
			// The commit exists locally at this point. We do not roll
			// it back: the next successful run pushes it along with
			// its own commit.
			return result, err
		}
		result.Pushed = true
	}

	return result, nil
}

// runGit executes a git command with the given arguments in the
// specified directory.
//
// It captures stdout and stderr separately. On success (exit code 0) it
// returns the stdout output. On failure it returns a model.CLIError with
// ExitGitError, including the stderr output in the error message.
//
// The repoPath parameter is passed to git via the -C flag, which causes
// git to change to that directory before doing anything else. This
// avoids changing the process's working directory, which would be
// problematic with a daemon running in the foreground.
func runGit(repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}
