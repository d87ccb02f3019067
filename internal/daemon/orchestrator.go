package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"reposync/internal/conflict"
	"reposync/internal/gitrepo"
	"reposync/internal/logger"
	"reposync/internal/mirror"
	"reposync/internal/model"
	"reposync/internal/pipeline"
	"reposync/internal/pull"
	"reposync/internal/recovery"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultPreviewLimit = 10

	syncMessagePrefix = "reposync: sync "
)

var (
	ErrNotInitialized = errors.New("orchestrator is not initialized")
	ErrLocked         = errors.New("working directory is in use by another reposync process")
	ErrSyncInFlight   = errors.New("a sync is in progress")
)

// Settings supplies the remote and the two local directories.
type Settings interface {
	RemoteURL() string
	Token() (string, bool)
	WorkDir() string
	SourceDir() string
}

type HistoryStore interface {
	Save(history *model.History) error
}

type Options struct {
	Settings Settings

	// Filter selects the mirrored source files. Built from IgnoreList when nil.
	Filter mirror.FileFilter

	IgnoreList []string
	Sink       Sink
	History    HistoryStore
	Clock      clockwork.Clock

	// LastSync seeds the last successful sync time, e.g. from history.
	LastSync *time.Time

	Interval         time.Duration
	RemoteName       string
	Branch           string
	AuthorName       string
	AuthorEmail      string
	BinaryExtensions []string
	SizeThreshold    float64
	PreviewLimit     int

	Runner   gitrepo.Runner
	Classify gitrepo.Classifier
}

// Orchestrator sequences push, pull and full sync against one remote. At
// most one Sync runs at a time; Push and Pull are not excluded against each
// other or against Sync.
type Orchestrator struct {
	opts  Options
	sink  Sink
	clock clockwork.Clock
	auto  *AutoSyncController

	syncing atomic.Bool

	mu       sync.Mutex
	ready    bool
	repo     *gitrepo.Repo
	mirror   *mirror.Mirror
	resolver *conflict.Resolver
	merger   *recovery.Merger
	protocol *pull.Protocol
	lock     *flock.Flock
	status   model.SyncStatus
	lastSync *time.Time
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}

	o := &Orchestrator{
		opts:     opts,
		sink:     opts.Sink,
		clock:    opts.Clock,
		status:   model.StatusPending,
		lastSync: opts.LastSync,
	}
	o.auto = NewAutoSyncController(opts.Clock, opts.Interval, o.Sync, opts.Sink.OnCountdown)
	return o
}

// Initialize binds the working directory to the remote, adopts remote-only
// files into the source when the working copy was just cloned, and mirrors the
// source into the working directory.
// Status ends as Pending since nothing was pushed yet.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return nil
	}

	if err := o.initialize(ctx); err != nil {
		o.releaseLock()
		o.setStatus(model.StatusError)
		o.sink.OnLog(fmt.Sprintf("initialization failed: %v", err), model.LevelError)
		return err
	}

	o.ready = true
	o.setStatus(model.StatusPending)
	o.sink.OnLog("initialized "+o.repositoryID(), model.LevelInfo)
	return nil
}

func (o *Orchestrator) initialize(ctx context.Context) error {
	s := o.opts.Settings
	if s == nil {
		return errors.New("settings are required")
	}

	remoteURL := s.RemoteURL()
	if remoteURL == "" {
		return errors.New("remote url is not configured")
	}

	work, source := s.WorkDir(), s.SourceDir()
	if work == "" || source == "" {
		return errors.New("working and source directories are required")
	}

	for _, dir := range []string{work, source} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	lock := flock.New(lockPath(work))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock working directory: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	o.lock = lock

	token, _ := s.Token()
	repo, err := gitrepo.New(gitrepo.Options{
		Dir:         work,
		RemoteName:  o.opts.RemoteName,
		RemoteURL:   remoteURL,
		Token:       token,
		Branch:      o.opts.Branch,
		AuthorName:  o.opts.AuthorName,
		AuthorEmail: o.opts.AuthorEmail,
		Runner:      o.opts.Runner,
		Classify:    o.opts.Classify,
	})
	if err != nil {
		return err
	}

	cloned, err := repo.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare working directory: %w", err)
	}

	filter := o.opts.Filter
	if filter == nil {
		if filter, err = pipeline.NewFilter(source, o.opts.IgnoreList); err != nil {
			return err
		}
	}

	m, err := mirror.New(source, work, filter)
	if err != nil {
		return err
	}

	// Adopt only right after remote history was checked out. Later, a file
	// missing from the source is a local deletion to publish.
	if cloned {
		if _, err := m.Adopt(); err != nil {
			return err
		}
	}
	if _, err := m.Push(); err != nil {
		return err
	}

	o.repo = repo
	o.mirror = m
	o.resolver = conflict.NewResolver(o.opts.SizeThreshold)
	o.merger = recovery.NewMerger(repo, o.resolver, conflict.NewBinarySet(o.opts.BinaryExtensions...))

	var pullOpts []pull.Option
	if o.opts.Classify != nil {
		pullOpts = append(pullOpts, pull.WithClassifier(o.opts.Classify))
	}
	o.protocol = pull.New(repo, o.merger, pullOpts...)

	logger.Log.Info("orchestrator initialized",
		zap.String("remote", o.repositoryIDFor(remoteURL)),
		zap.String("work_dir", repo.Dir()),
		zap.String("source_dir", m.Source()),
		zap.String("branch", repo.Branch()))

	return nil
}

// lockPath sits next to the working directory so it exists before git init.
func lockPath(work string) string {
	clean := filepath.Clean(work)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".reposync.lock")
}

func (o *Orchestrator) releaseLock() {
	if o.lock == nil {
		return
	}
	if err := o.lock.Unlock(); err != nil {
		logger.Log.Warn("failed to release working directory lock", zap.Error(err))
	}
	o.lock = nil
}

// Close stops auto-sync and releases the working directory lock.
func (o *Orchestrator) Close() error {
	o.auto.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.releaseLock()
	o.ready = false
	return nil
}

// Disconnect stops auto-sync, removes the working copy and releases the lock.
// The source directory is left untouched. A later Initialize clones again.
func (o *Orchestrator) Disconnect() error {
	if _, err := o.components(); err != nil {
		return err
	}

	if !o.syncing.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer o.syncing.Store(false)

	o.auto.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.repo.Destroy(); err != nil {
		o.setStatus(model.StatusError)
		o.sink.OnLog(fmt.Sprintf("disconnect failed: %v", err), model.LevelError)
		return err
	}

	logger.Log.Info("working copy removed", zap.String("work_dir", o.repo.Dir()))

	o.releaseLock()
	o.ready = false
	o.repo, o.mirror, o.resolver, o.merger, o.protocol = nil, nil, nil, nil, nil
	o.setStatus(model.StatusPending)
	o.sink.OnLog("disconnected "+o.repositoryID(), model.LevelInfo)
	return nil
}

func (o *Orchestrator) Initialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

func (o *Orchestrator) setStatus(status model.SyncStatus) {
	o.status = status
	o.sink.OnStatus(status)
}

func (o *Orchestrator) updateStatus(status model.SyncStatus) {
	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
	o.sink.OnStatus(status)
}

func (o *Orchestrator) repositoryID() string {
	if o.opts.Settings == nil {
		return ""
	}
	return o.repositoryIDFor(o.opts.Settings.RemoteURL())
}

// repositoryIDFor strips credentials from the remote URL.
func (o *Orchestrator) repositoryIDFor(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	u.User = nil
	return u.String()
}

type components struct {
	repo     *gitrepo.Repo
	mirror   *mirror.Mirror
	resolver *conflict.Resolver
	merger   *recovery.Merger
	protocol *pull.Protocol
}

func (o *Orchestrator) components() (*components, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ready {
		return nil, ErrNotInitialized
	}

	return &components{
		repo:     o.repo,
		mirror:   o.mirror,
		resolver: o.resolver,
		merger:   o.merger,
		protocol: o.protocol,
	}, nil
}

// Push pulls first to avoid diverging, mirrors the source, commits and
// pushes when there is new history.
func (o *Orchestrator) Push(ctx context.Context) error {
	c, err := o.components()
	if err != nil {
		return err
	}

	return o.operation(model.OperationPush, model.StatusPushing, func(h *model.History) error {
		recovered, err := o.pullPhase(ctx, c)
		h.Recovered = recovered
		if err != nil {
			return err
		}
		return o.pushPhase(ctx, c, h)
	})
}

// Pull fetches remote history and applies it to the source directory.
func (o *Orchestrator) Pull(ctx context.Context) error {
	c, err := o.components()
	if err != nil {
		return err
	}

	return o.operation(model.OperationPull, model.StatusPulling, func(h *model.History) error {
		recovered, err := o.pullPhase(ctx, c)
		h.Recovered = recovered
		h.Commit = c.repo.HeadID(ctx)
		return err
	})
}

// Sync is pull then push. It returns immediately, without touching the
// repository, when another Sync is in flight.
func (o *Orchestrator) Sync(ctx context.Context) error {
	c, err := o.components()
	if err != nil {
		return err
	}

	if !o.syncing.CompareAndSwap(false, true) {
		logger.Log.Debug("sync already in flight, skipping")
		return nil
	}
	defer o.syncing.Store(false)

	return o.operation(model.OperationSync, model.StatusSyncing, func(h *model.History) error {
		recovered, err := o.pullPhase(ctx, c)
		h.Recovered = recovered
		if err != nil {
			return err
		}
		return o.pushPhase(ctx, c, h)
	})
}

// Syncing reports whether a Sync is in flight.
func (o *Orchestrator) Syncing() bool {
	return o.syncing.Load()
}

func (o *Orchestrator) operation(kind model.OperationKind, active model.SyncStatus, fn func(h *model.History) error) error {
	history := &model.History{
		OperationID: uuid.NewString(),
		Operation:   kind,
		StartedAt:   o.clock.Now(),
	}
	log := logger.Log.With(
		zap.String("op", history.OperationID),
		zap.String("kind", string(kind)))

	log.Info("operation started")
	o.updateStatus(active)

	err := fn(history)

	finished := o.clock.Now()
	history.FinishedAt = finished

	if err != nil {
		history.Status = model.StatusError
		history.Message = err.Error()
		log.Error("operation failed", zap.Error(err))

		o.updateStatus(model.StatusError)
		o.sink.OnLog(fmt.Sprintf("%s failed: %v", kind, err), model.LevelError)
	} else {
		history.Status = model.StatusSynced
		if history.Message == "" {
			history.Message = "up to date"
		}
		log.Info("operation finished",
			zap.String("commit", history.Commit),
			zap.Duration("took", finished.Sub(history.StartedAt)))

		o.mu.Lock()
		o.lastSync = &finished
		o.mu.Unlock()

		o.updateStatus(model.StatusSynced)
		o.sink.OnLog(fmt.Sprintf("%s finished: %s", kind, history.Message), model.LevelSuccess)
	}

	if o.opts.History != nil {
		if saveErr := o.opts.History.Save(history); saveErr != nil {
			log.Warn("failed to save history", zap.Error(saveErr))
		}
	}

	return err
}

// pullPhase runs the pull protocol and applies whatever moved HEAD to the
// source directory.
func (o *Orchestrator) pullPhase(ctx context.Context, c *components) (bool, error) {
	res, err := c.protocol.Pull(ctx)
	if err != nil {
		return res != nil && res.Recovered, err
	}

	if !res.Changed() || res.HeadAfter == "" {
		return res.Recovered, nil
	}

	var paths []string
	if res.HeadBefore == "" {
		paths, err = c.repo.ListFiles(ctx, "HEAD")
	} else {
		paths, err = c.repo.DiffNames(ctx, res.HeadBefore, res.HeadAfter)
	}
	if err != nil {
		return res.Recovered, fmt.Errorf("failed to list pulled changes: %w", err)
	}

	if _, err := c.mirror.PullBack(ctx, c.repo, c.resolver, res.HeadBefore, paths); err != nil {
		return res.Recovered, fmt.Errorf("failed to apply pulled changes: %w", err)
	}

	return res.Recovered, nil
}

// pushPhase mirrors, commits and pushes. The push happens only when a commit
// was created or earlier commits are still unpushed.
func (o *Orchestrator) pushPhase(ctx context.Context, c *components, h *model.History) error {
	changes, err := c.mirror.Push()
	if err != nil {
		return err
	}

	if err := c.repo.StageAll(ctx); err != nil {
		return err
	}

	message := syncMessagePrefix + o.clock.Now().UTC().Format(time.RFC3339)
	id, err := c.repo.Commit(ctx, message)
	committed := err == nil
	if err != nil && !errors.Is(err, gitrepo.ErrNothingToCommit) {
		return err
	}

	ahead, _, err := c.repo.AheadBehind(ctx)
	if err != nil {
		return err
	}

	if !committed && ahead == 0 {
		h.Commit = c.repo.HeadID(ctx)
		return nil
	}

	if err := c.repo.Push(ctx, false); err != nil {
		if !errors.Is(err, gitrepo.ErrDivergence) {
			return err
		}

		logger.Log.Warn("push rejected, reconciling", zap.Error(err))
		if _, err := c.merger.Recover(ctx, false); err != nil {
			return err
		}
		h.Recovered = true
	}

	h.Commit = c.repo.HeadID(ctx)
	if committed {
		h.Message = fmt.Sprintf("pushed %s (%d files)", shortID(id), changes.Len())
	} else {
		h.Message = fmt.Sprintf("pushed %d pending commits", ahead)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Status reports pending changes, the last successful sync and the remote.
func (o *Orchestrator) Status(ctx context.Context) (model.StatusSnapshot, error) {
	c, err := o.components()
	if err != nil {
		return model.StatusSnapshot{}, err
	}

	changed, err := o.changedPaths(ctx, c)
	if err != nil {
		return model.StatusSnapshot{}, err
	}

	o.mu.Lock()
	snapshot := model.StatusSnapshot{
		Status:             o.status,
		PendingChangeCount: len(changed),
		LastSyncAt:         o.lastSync,
		RepositoryID:       o.repositoryID(),
	}
	o.mu.Unlock()

	snapshot.AutoSync = o.auto.Running()
	snapshot.NextSyncIn = o.auto.Remaining()
	return snapshot, nil
}

// DetailedStatus fetches, then reports how far the branch is from the remote
// and a bounded preview of the changed paths.
func (o *Orchestrator) DetailedStatus(ctx context.Context) (model.DetailedStatus, error) {
	c, err := o.components()
	if err != nil {
		return model.DetailedStatus{}, err
	}

	if err := c.repo.Fetch(ctx); err != nil && !errors.Is(err, gitrepo.ErrEmptyRemote) {
		logger.Log.Warn("fetch failed, using cached remote state", zap.Error(err))
	}

	ahead, behind, err := c.repo.AheadBehind(ctx)
	if err != nil {
		return model.DetailedStatus{}, err
	}

	changed, err := o.changedPaths(ctx, c)
	if err != nil {
		return model.DetailedStatus{}, err
	}

	preview := changed
	if len(preview) > o.opts.PreviewLimit {
		preview = preview[:o.opts.PreviewLimit]
	}

	return model.DetailedStatus{
		CommitsAhead:      ahead,
		CommitsBehind:     behind,
		ChangedPaths:      preview,
		TotalChangedCount: len(changed),
	}, nil
}

// changedPaths is the union of source paths not yet mirrored and uncommitted
// working copy changes, sorted.
func (o *Orchestrator) changedPaths(ctx context.Context, c *components) ([]string, error) {
	plan, err := c.mirror.Plan()
	if err != nil {
		return nil, err
	}

	entries, err := c.repo.Status(ctx)
	if err != nil {
		return nil, err
	}

	set := mapset.NewThreadUnsafeSet[string](plan.Paths()...)
	for _, e := range entries {
		set.Add(e.Path)
	}

	paths := set.ToSlice()
	sort.Strings(paths)
	return paths, nil
}

func (o *Orchestrator) StartAutoSync(ctx context.Context) error {
	if _, err := o.components(); err != nil {
		return err
	}

	if o.auto.Start(ctx) {
		o.sink.OnLog(fmt.Sprintf("auto-sync every %s", o.opts.Interval), model.LevelInfo)
	}
	return nil
}

func (o *Orchestrator) StopAutoSync() {
	if o.auto.Running() {
		o.auto.Stop()
		o.sink.OnLog("auto-sync stopped", model.LevelInfo)
	}
}

func (o *Orchestrator) AutoSync() *AutoSyncController {
	return o.auto
}
