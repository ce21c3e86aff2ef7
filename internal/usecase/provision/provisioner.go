// Package provision makes sure managed indexes exist on the engine with their declared settings.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/settings"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
)

// Task polling defaults.
const (
	DefaultTaskTimeout  = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// State is a step of the provisioning state machine.
type State string

// Provisioning states. Ready is the only terminal success state.
const (
	StateChecking    State = "checking"
	StateFound       State = "found"
	StateCreating    State = "creating"
	StateWaiting     State = "waiting"
	StateTimedOut    State = "timed_out"
	StateFailed      State = "failed"
	StateConfiguring State = "configuring"
	StateReady       State = "ready"
)

// Options control a single Ensure call.
type Options struct {
	UpdateSettings bool
	TaskTimeout    time.Duration
	PollInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Result reports how an index was made ready.
type Result struct {
	Index  string       `json:"index"`
	Remote index.Remote `json:"remote"`
	State  State        `json:"state"`
	// Path lists the states visited, in order.
	Path            []State `json:"path"`
	Created         bool    `json:"created"`
	SettingsUpdated bool    `json:"settings_updated"`
	// BestEffort is set when creation was not confirmed before the task timeout.
	BestEffort bool `json:"best_effort"`
}

func (r *Result) enter(s State) {
	r.State = s
	r.Path = append(r.Path, s)
}

var errTaskTimeout = errors.New("task did not finish before timeout")

// Provisioner creates missing remote indexes and pushes their settings.
type Provisioner struct {
	remote   Remote
	registry Registry
	codec    affix.Codec
	defaults Options
	logger   *zap.Logger
}

// New creates a provisioner.
func New(r Remote, reg Registry, codec affix.Codec, l *zap.Logger) *Provisioner {
	return &Provisioner{remote: r, registry: reg, codec: codec, logger: logger.OrNop(l)}
}

// WithDefaults sets the timeouts used when Options leave them zero.
func (p *Provisioner) WithDefaults(taskTimeout, pollInterval time.Duration) *Provisioner {
	p.defaults = Options{TaskTimeout: taskTimeout, PollInterval: pollInterval}
	return p
}

// Ensure returns the remote handle of idx, creating the index when the engine
// reports it missing. A creation task that outlives TaskTimeout is not an error:
// the index is treated as ready on a best-effort basis.
func (p *Provisioner) Ensure(ctx context.Context, idx index.Index, opts Options) (Result, error) {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = p.defaults.TaskTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = p.defaults.PollInterval
	}
	opts = opts.withDefaults()

	log := logger.FromContext(ctx, p.logger).With(zap.String("index", idx.ID()))
	uid := p.codec.Add(idx.ID())
	res := Result{Index: idx.ID()}

	res.enter(StateChecking)
	existing, err := p.fetch(ctx, uid)
	switch {
	case err == nil:
		res.enter(StateFound)
		res.Remote = existing
		log.Debug("remote index found", zap.String("uid", uid))
		if opts.UpdateSettings {
			res.enter(StateConfiguring)
			updated, err := p.pushSettings(ctx, idx, uid)
			if err != nil {
				metrics.ProvisionTotal.WithLabelValues("failed").Inc()
				return res, err
			}
			res.SettingsUpdated = updated
		}
		res.enter(StateReady)
		metrics.ProvisionTotal.WithLabelValues("found").Inc()
		return res, nil
	case !remote.IsNotFound(err):
		metrics.ProvisionTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	res.enter(StateCreating)
	log.Debug("creating remote index", zap.String("uid", uid), zap.String("primary_key", idx.PrimaryKey()))
	taskUID, err := p.create(ctx, uid, idx.PrimaryKey())
	if err != nil {
		metrics.ProvisionTotal.WithLabelValues("failed").Inc()
		return res, err
	}
	res.Created = true

	if taskUID != nil {
		res.enter(StateWaiting)
		switch err := p.wait(ctx, *taskUID, opts); {
		case errors.Is(err, errTaskTimeout):
			res.enter(StateTimedOut)
			res.BestEffort = true
			metrics.ProvisionTotal.WithLabelValues("timeout").Inc()
			log.Warn("index creation not confirmed before timeout, continuing",
				zap.Int64("task_uid", *taskUID), zap.Duration("timeout", opts.TaskTimeout))
		case err != nil:
			res.enter(StateFailed)
			metrics.ProvisionTotal.WithLabelValues("failed").Inc()
			return res, err
		}
	}

	res.enter(StateConfiguring)
	updated, err := p.pushSettings(ctx, idx, uid)
	if err != nil {
		metrics.ProvisionTotal.WithLabelValues("failed").Inc()
		return res, err
	}
	res.SettingsUpdated = updated

	created, err := p.fetch(ctx, uid)
	switch {
	case err == nil:
		res.Remote = created
	case res.BestEffort && remote.IsNotFound(err):
		res.Remote = index.Remote{UID: uid, PrimaryKey: idx.PrimaryKey()}
	default:
		metrics.ProvisionTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	res.enter(StateReady)
	metrics.ProvisionTotal.WithLabelValues("created").Inc()
	log.Debug("remote index ready", zap.String("uid", uid), zap.Bool("best_effort", res.BestEffort))
	return res, nil
}

func (p *Provisioner) fetch(ctx context.Context, uid string) (index.Remote, error) {
	resp, err := p.remote.Do(ctx, remote.Get("/indexes/"+url.PathEscape(uid)))
	if err != nil {
		return index.Remote{}, err
	}
	var out index.Remote
	if err := resp.Decode(&out); err != nil {
		return index.Remote{}, fmt.Errorf("get index %s: %w", uid, err)
	}
	return out, nil
}

func (p *Provisioner) create(ctx context.Context, uid, primaryKey string) (*int64, error) {
	req, err := remote.NewJSON(http.MethodPost, "/indexes", map[string]string{
		"uid":        uid,
		"primaryKey": primaryKey,
	})
	if err != nil {
		return nil, err
	}
	resp, err := p.remote.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", uid, err)
	}
	var out struct {
		TaskUID *int64 `json:"taskUid"`
	}
	if len(resp.Body) > 0 {
		if err := resp.Decode(&out); err != nil {
			return nil, fmt.Errorf("create index %s: %w", uid, err)
		}
	}
	return out.TaskUID, nil
}

// wait polls the task until it finishes, fails or the task timeout elapses.
// Cancellation of ctx itself is returned as an error.
func (p *Provisioner) wait(ctx context.Context, uid int64, opts Options) error {
	taskCtx, cancel := context.WithTimeout(ctx, opts.TaskTimeout)
	defer cancel()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	path := "/tasks/" + strconv.FormatInt(uid, 10)
	for {
		resp, err := p.remote.Do(taskCtx, remote.Get(path))
		if err == nil {
			var t task.Task
			if err := resp.Decode(&t); err != nil {
				return fmt.Errorf("get task %d: %w", uid, err)
			}
			if t.Failed() {
				return &domain.TaskFailedError{TaskUID: uid, Message: t.ErrorMessage()}
			}
			if t.Status.Finished() {
				return nil
			}
		} else if taskCtx.Err() == nil {
			return fmt.Errorf("get task %d: %w", uid, err)
		}

		select {
		case <-taskCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("wait for task %d: %w", uid, ctx.Err())
			}
			return errTaskTimeout
		case <-ticker.C:
		}
	}
}

// pushSettings sends the repository settings of idx. Indexes without an owning
// repository or with empty settings are left untouched.
func (p *Provisioner) pushSettings(ctx context.Context, idx index.Index, uid string) (bool, error) {
	s, err := p.settingsFor(ctx, idx)
	if err != nil {
		return false, err
	}
	if len(s) == 0 {
		return false, nil
	}
	req, err := remote.NewJSON(http.MethodPatch, "/indexes/"+url.PathEscape(uid)+"/settings", s)
	if err != nil {
		return false, err
	}
	if _, err := p.remote.Do(ctx, req); err != nil {
		return false, fmt.Errorf("update settings of %s: %w", uid, err)
	}
	return true, nil
}

func (p *Provisioner) settingsFor(ctx context.Context, idx index.Index) (settings.Settings, error) {
	repo, err := p.registry.RepositoryFor(idx.ID())
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if repo == nil {
		return nil, nil
	}
	s, err := repo.Settings(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("settings of %s from repository %s: %w", idx.ID(), repo.Name(), err)
	}
	return s, nil
}
