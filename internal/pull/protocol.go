// Package pull implements the pull state machine: stash, rebase-pull, and
// fall back to recovery when histories diverged or the working copy is broken.
package pull

import (
	"context"
	"errors"
	"fmt"

	"reposync/internal/gitrepo"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/recovery"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle          State = "IDLE"
	StateFetching      State = "FETCHING"
	StateRebasePulling State = "REBASE_PULLING"
	StateRecovering    State = "RECOVERING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

type Repository interface {
	recovery.Repository
	Health(ctx context.Context) (model.Health, error)
	HeadExists(ctx context.Context) bool
	HeadID(ctx context.Context) string
	Stash(ctx context.Context) (bool, error)
	Pull(ctx context.Context, rebase bool) error
}

// Recoverer is satisfied by *recovery.Merger.
type Recoverer interface {
	Recover(ctx context.Context, hadStash bool) (*recovery.Report, error)
}

type Result struct {
	State       State
	HadStash    bool
	Recovered   bool
	EmptyRemote bool
	HeadBefore  string
	HeadAfter   string
	Recovery    *recovery.Report
}

// Changed reports whether the pull moved HEAD.
func (r *Result) Changed() bool {
	return r.HeadBefore != r.HeadAfter
}

type Protocol struct {
	repo     Repository
	merger   Recoverer
	classify gitrepo.Classifier
	observe  func(from, to State)
}

type Option func(*Protocol)

// WithClassifier overrides how pull failures are classified. By default the
// kind attached by the repository is used.
func WithClassifier(c gitrepo.Classifier) Option {
	return func(p *Protocol) {
		p.classify = c
	}
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(p *Protocol) {
		p.observe = fn
	}
}

func New(repo Repository, merger Recoverer, opts ...Option) *Protocol {
	p := &Protocol{
		repo:   repo,
		merger: merger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type run struct {
	*Protocol
	state  State
	result *Result
}

func (r *run) to(next State) {
	logger.Log.Debug("pull transition",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))

	if r.observe != nil {
		r.observe(r.state, next)
	}
	r.state = next
	r.result.State = next
}

// Pull runs one fresh pass of the state machine. EmptyRemote and divergence
// are absorbed; recovery failures and unclassified errors are returned.
func (p *Protocol) Pull(ctx context.Context) (*Result, error) {
	r := &run{Protocol: p, state: StateIdle, result: &Result{State: StateIdle}}
	r.result.HeadBefore = p.repo.HeadID(ctx)

	err := r.execute(ctx)
	r.result.HeadAfter = p.repo.HeadID(ctx)

	if err != nil {
		logger.Log.Error("pull failed", zap.Error(err))
		return r.result, err
	}

	logger.Log.Info("pull finished",
		zap.Bool("had_stash", r.result.HadStash),
		zap.Bool("recovered", r.result.Recovered),
		zap.Bool("empty_remote", r.result.EmptyRemote),
		zap.String("head", r.result.HeadAfter))

	return r.result, nil
}

func (r *run) execute(ctx context.Context) error {
	health, err := r.repo.Health(ctx)
	if err != nil {
		r.to(StateFailed)
		return fmt.Errorf("failed to read repository health: %w", err)
	}

	if health == model.HealthConflicted || health == model.HealthLocked {
		logger.Log.Warn("working copy needs recovery before pull", zap.String("health", string(health)))
		return r.runRecovery(ctx, false)
	}

	r.to(StateFetching)
	if health == model.HealthDirty && r.repo.HeadExists(ctx) {
		saved, err := r.repo.Stash(ctx)
		if err != nil {
			r.to(StateFailed)
			return fmt.Errorf("failed to stash local changes: %w", err)
		}
		r.result.HadStash = saved
	}

	r.to(StateRebasePulling)
	err = r.repo.Pull(ctx, true)
	if err == nil {
		r.popStash(ctx)
		r.to(StateDone)
		return nil
	}

	switch r.kind(err) {
	case gitrepo.FailureEmptyRemote:
		logger.Log.Info("remote has no history yet")
		r.result.EmptyRemote = true
		r.popStash(ctx)
		r.to(StateDone)
		return nil
	case gitrepo.FailureDivergence:
		logger.Log.Warn("pull diverged, recovering", zap.Error(err))
		return r.runRecovery(ctx, r.result.HadStash)
	default:
		r.popStash(ctx)
		r.to(StateFailed)
		return err
	}
}

func (r *run) runRecovery(ctx context.Context, hadStash bool) error {
	r.to(StateRecovering)

	report, err := r.merger.Recover(ctx, hadStash)
	r.result.Recovery = report
	if err != nil {
		r.to(StateFailed)
		return err
	}

	r.result.Recovered = true
	r.to(StateDone)
	return nil
}

func (r *run) popStash(ctx context.Context) {
	if !r.result.HadStash {
		return
	}

	if err := r.repo.StashPop(ctx); err != nil {
		logger.Log.Warn("failed to restore stashed changes", zap.Error(err))
	}
}

func (r *run) kind(err error) gitrepo.FailureKind {
	if r.classify == nil {
		return gitrepo.KindOf(err)
	}

	if ce, ok := errors.AsType[*gitrepo.CommandError](err); ok {
		return r.classify(ce.Output)
	}
	return r.classify(err.Error())
}
