package provision

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/meilifed/internal/logger"
)

// DefaultSyncConcurrency bounds parallel Ensure calls during a sync.
const DefaultSyncConcurrency = 4

// Outcome is the sync result of one index.
type Outcome struct {
	Result
	Err error `json:"-"`
}

// Syncer ensures every configured index matching a pattern, pushing settings.
type Syncer struct {
	provisioner *Provisioner
	registry    Registry
	opts        Options
	concurrency int
	logger      *zap.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(p *Provisioner, reg Registry, opts Options, l *zap.Logger) *Syncer {
	opts.UpdateSettings = true
	return &Syncer{
		provisioner: p,
		registry:    reg,
		opts:        opts,
		concurrency: DefaultSyncConcurrency,
		logger:      logger.OrNop(l),
	}
}

// WithConcurrency configures how many indexes are synced in parallel.
func (s *Syncer) WithConcurrency(n int) *Syncer {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Sync ensures all indexes whose id matches pattern. One failing index does not
// stop the others; the report keeps registry order.
func (s *Syncer) Sync(ctx context.Context, pattern string) []Outcome {
	targets := s.registry.Match(pattern)
	out := make([]Outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, idx := range targets {
		g.Go(func() error {
			res, err := s.provisioner.Ensure(gctx, idx, s.opts)
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	log := logger.FromContext(ctx, s.logger)
	for _, o := range out {
		if o.Err != nil {
			log.Error("index sync failed", zap.String("index", o.Index), zap.Error(o.Err))
			continue
		}
		log.Info("index synced", zap.String("index", o.Index),
			zap.Bool("created", o.Created), zap.Bool("settings_updated", o.SettingsUpdated))
	}
	return out
}
