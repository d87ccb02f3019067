// Package gitrepo wraps a single git working copy bound to one remote and one
// tracked branch. It exposes primitives only; policy lives in the callers.
package gitrepo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"reposync/internal/logger"

	"go.uber.org/zap"
)

const (
	DefaultRemote = "origin"
	DefaultBranch = "main"

	stashMessage = "reposync autostash"
)

type Options struct {
	Dir         string
	RemoteName  string
	RemoteURL   string
	Token       string
	Branch      string
	AuthorName  string
	AuthorEmail string
	Runner      Runner
	Classify    Classifier
}

// Repo serializes every git invocation: at most one git process runs against
// the working directory at a time.
type Repo struct {
	mu       sync.Mutex
	dir      string
	remote   string
	url      string
	token    string
	branch   string
	author   string
	email    string
	runner   Runner
	classify Classifier
	secrets  []string
}

func New(opts Options) (*Repo, error) {
	if opts.Dir == "" {
		return nil, errors.New("working directory is required")
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid working directory: %w", err)
	}

	r := &Repo{
		dir:      dir,
		remote:   opts.RemoteName,
		url:      opts.RemoteURL,
		token:    opts.Token,
		branch:   opts.Branch,
		author:   opts.AuthorName,
		email:    opts.AuthorEmail,
		runner:   opts.Runner,
		classify: opts.Classify,
	}

	if r.remote == "" {
		r.remote = DefaultRemote
	}
	if r.branch == "" {
		r.branch = DefaultBranch
	}
	if r.runner == nil {
		r.runner = ExecRunner{}
	}
	if r.classify == nil {
		r.classify = Classify
	}
	if r.token != "" {
		r.secrets = []string{r.basicAuth(), r.token}
	}

	return r, nil
}

func (r *Repo) Dir() string { return r.dir }

func (r *Repo) Branch() string { return r.branch }

func (r *Repo) RemoteName() string { return r.remote }

// RemoteRef is the remote-tracking ref of the tracked branch, e.g. origin/main.
func (r *Repo) RemoteRef() string {
	return r.remote + "/" + r.branch
}

func (r *Repo) gitDir() string {
	return filepath.Join(r.dir, ".git")
}

func (r *Repo) IsRepo() bool {
	info, err := os.Stat(r.gitDir())
	return err == nil && info.IsDir()
}

// Prepare clones or adopts the working directory: it initializes a repository
// when none exists, binds the remote, fetches, and checks out the tracked
// branch from the remote when the local branch has no history yet. cloned
// reports that this call checked out remote history into a working copy that
// had none.
func (r *Repo) Prepare(ctx context.Context) (cloned bool, err error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create working directory: %w", err)
	}

	if !r.IsRepo() {
		if _, err := r.run(ctx, "init", "-b", r.branch); err != nil {
			return false, err
		}
		logger.Log.Info("initialized working copy",
			zap.String("dir", r.dir),
			zap.String("branch", r.branch))
	}

	if err := r.bindRemote(ctx); err != nil {
		return false, err
	}

	settings := [][2]string{
		{"user.name", r.author},
		{"user.email", r.email},
		{"commit.gpgsign", "false"},
		{"core.quotepath", "off"},
		{"pull.rebase", "true"},
	}
	for _, kv := range settings {
		if kv[1] == "" {
			continue
		}
		if _, err := r.run(ctx, "config", kv[0], kv[1]); err != nil {
			return false, err
		}
	}

	if err := r.Fetch(ctx); err != nil {
		return false, err
	}

	born := r.HeadExists(ctx)
	if !born {
		if r.RemoteBranchExists(ctx) {
			if _, err := r.run(ctx, "checkout", "-f", "-B", r.branch, r.RemoteRef()); err != nil {
				return false, err
			}
			return true, nil
		}
		_, err := r.run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+r.branch)
		return false, err
	}

	return false, r.ensureBranch(ctx)
}

func (r *Repo) bindRemote(ctx context.Context) error {
	if r.url == "" {
		return errors.New("remote url is required")
	}

	current, err := r.run(ctx, "remote", "get-url", r.remote)
	if err != nil {
		_, err = r.run(ctx, "remote", "add", r.remote, r.url)
		return err
	}

	if current != r.url {
		_, err = r.run(ctx, "remote", "set-url", r.remote, r.url)
		return err
	}

	return nil
}

func (r *Repo) ensureBranch(ctx context.Context) error {
	current, err := r.run(ctx, "symbolic-ref", "--short", "HEAD")
	if err == nil && current == r.branch {
		return nil
	}

	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+r.branch); err == nil {
		_, err = r.run(ctx, "checkout", r.branch)
		return err
	}

	_, err = r.run(ctx, "checkout", "-b", r.branch)
	return err
}

// Destroy removes the working copy. Used when the remote is disconnected.
func (r *Repo) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to remove working copy: %w", err)
	}

	return nil
}

// Exec runs a raw git command in the working directory.
func (r *Repo) Exec(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, args...)
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.runRaw(ctx, args...)
	return strings.TrimSpace(string(out)), err
}

func (r *Repo) runRaw(ctx context.Context, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stdout, stderr, err := r.runner.Run(ctx, r.dir, args...)
	if err != nil {
		msg := r.redact(string(stderr) + "\n" + string(stdout))
		cmdErr := &CommandError{
			Args:   r.redactArgs(args),
			Output: strings.TrimSpace(msg),
			Kind:   r.classify(msg),
			Err:    err,
		}

		logger.Log.Debug("git command failed",
			zap.Strings("args", cmdErr.Args),
			zap.String("kind", cmdErr.Kind.String()),
			zap.String("output", cmdErr.Output))

		return stdout, cmdErr
	}

	return stdout, nil
}

// network prefixes args with an auth header for https remotes so the token
// never lands in .git/config.
func (r *Repo) network(args ...string) []string {
	if r.token == "" || !r.isHTTPS() {
		return args
	}

	header := "http.extraHeader=Authorization: Basic " + r.basicAuth()
	return append([]string{"-c", header}, args...)
}

func (r *Repo) isHTTPS() bool {
	u, err := url.Parse(r.url)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http")
}

func (r *Repo) basicAuth() string {
	user := "x-access-token"
	if u, err := url.Parse(r.url); err == nil && u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + r.token))
}

func (r *Repo) redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

func (r *Repo) redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.redact(a)
	}
	return out
}
