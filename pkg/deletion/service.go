package deletion

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/distflow/localizer/pkg/containers"
)

// Config tunes the deletion service.
type Config struct {
	// Workers is the number of concurrent deletion workers.
	Workers int `toml:"workers" json:"workers"`
	// DelaySec postpones every deletion by the given number of
	// seconds, mainly useful for debugging localization issues.
	DelaySec int `toml:"delay-sec" json:"delay-sec"`
	// RatePerSecond caps the number of deletions started per second.
	// Zero means unlimited.
	RatePerSecond float64 `toml:"rate-per-second" json:"rate-per-second"`
}

// Adjust fills in defaults.
func (c *Config) Adjust() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DelaySec < 0 {
		c.DelaySec = 0
	}
	if c.RatePerSecond < 0 {
		c.RatePerSecond = 0
	}
}

// Service executes fire-and-forget filesystem subtree deletions on a
// bounded worker pool. Callers never learn about deletion failures;
// they are logged here.
type Service struct {
	cfg     Config
	clock   clock.Clock
	limiter *rate.Limiter

	queue   *containers.SliceQueue[*task]
	pending atomic.Int64
	closed  atomic.Bool

	cancel context.CancelFunc
	eg     *errgroup.Group
}

type task struct {
	id   string
	user string
	path string
}

// NewService starts a deletion service with cfg.Workers workers.
func NewService(cfg Config) *Service {
	return newService(cfg, clock.New())
}

func newService(cfg Config, clk clock.Clock) *Service {
	cfg.Adjust()

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)

	s := &Service{
		cfg:     cfg,
		clock:   clk,
		limiter: limiter,
		queue:   containers.NewSliceQueue[*task](),
		cancel:  cancel,
		eg:      eg,
	}
	for i := 0; i < cfg.Workers; i++ {
		eg.Go(func() error {
			return s.runWorker(ctx)
		})
	}
	return s
}

// Delete requests removal of the subtree at path on behalf of user. It
// never blocks and never reports failure to the caller.
func (s *Service) Delete(user string, path string) {
	if path == "" {
		return
	}
	if s.closed.Load() {
		log.L().Warn("delete requested after close, dropping",
			zap.String("user", user), zap.String("path", path))
		return
	}

	tsk := &task{
		id:   uuid.New().String(),
		user: user,
		path: path,
	}
	s.pending.Add(1)
	s.queue.Add(tsk)
	log.L().Info("deletion scheduled",
		zap.String("task-id", tsk.id),
		zap.String("user", tsk.user),
		zap.String("path", tsk.path))
}

// Pending returns the number of deletions accepted but not executed
// yet.
func (s *Service) Pending() int64 {
	return s.pending.Load()
}

// Close stops the workers. Deletions that have not started are
// dropped.
func (s *Service) Close() {
	s.closed.Store(true)
	s.cancel()
	// Workers only ever return the canceled context's error.
	_ = s.eg.Wait()
}

func (s *Service) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.C:
		}

		for {
			tsk, ok := s.queue.Pop()
			if !ok {
				break
			}
			s.runTask(ctx, tsk)

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
}

func (s *Service) runTask(ctx context.Context, tsk *task) {
	defer s.pending.Sub(1)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
	if delay := time.Duration(s.cfg.DelaySec) * time.Second; delay > 0 {
		timer := s.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if err := os.RemoveAll(tsk.path); err != nil {
		log.L().Warn("deletion failed",
			zap.String("task-id", tsk.id),
			zap.String("user", tsk.user),
			zap.String("path", tsk.path),
			zap.Error(err))
		return
	}
	log.L().Info("deletion finished",
		zap.String("task-id", tsk.id),
		zap.String("user", tsk.user),
		zap.String("path", tsk.path))
}
