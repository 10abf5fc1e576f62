package inventory

import (
	"context"
	"sync/atomic"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"golang.org/x/sync/errgroup"
)

const (
	sweeperService = "expiry_sweeper"

	DefaultSweepInterval  = 60 * time.Second
	DefaultSweepBatch     = 100
	DefaultSweepWorkers   = 4
	DefaultPurgeRetention = 30 * 24 * time.Hour
	DefaultPurgeEvery     = 24 * time.Hour
)

// Leader reports whether this instance should run the sweep. A nil Leader
// means every instance sweeps, which is still correct.
type Leader interface {
	IsLeader(ctx context.Context) (bool, error)
}

type SweeperConfig struct {
	Interval       time.Duration
	BatchSize      int
	Workers        int
	PurgeRetention time.Duration
	PurgeEvery     time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultSweepBatch
	}
	if c.Workers <= 0 {
		c.Workers = DefaultSweepWorkers
	}
	if c.PurgeRetention <= 0 {
		c.PurgeRetention = DefaultPurgeRetention
	}
	if c.PurgeEvery <= 0 {
		c.PurgeEvery = DefaultPurgeEvery
	}
	return c
}

// SweepResult summarises one pass.
type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
	Purged  int
	Leader  bool
}

// Sweeper reclaims stock from reservations whose hold has lapsed.
type Sweeper struct {
	engine *Engine
	ledger dominv.Ledger
	leader Leader
	cfg    SweeperConfig
	now    func() time.Time

	log     observability.Logger
	expired observability.Counter
	purged  observability.Counter

	lastPurge atomic.Int64
}

func NewSweeper(engine *Engine, ledger dominv.Ledger, leader Leader, cfg SweeperConfig, tel observability.Observability) *Sweeper {
	log, _, metrics := observability.Resolve(tel)
	return &Sweeper{
		engine:  engine,
		ledger:  ledger,
		leader:  leader,
		cfg:     cfg.withDefaults(),
		now:     engine.Now,
		log:     log.With(observability.F("service", sweeperService)),
		expired: metrics.Counter(observability.MReservationsExpired),
		purged:  metrics.Counter(observability.MReservationsPurged),
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("sweeper_started", observability.F("interval", s.cfg.Interval.String()))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper_stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("sweep_failed", observability.F("error", err.Error()))
			}
		}
	}
}

// SweepOnce expires every lapsed reservation visible now, batch by batch, and
// purges old terminal reservations when the purge is due.
func (s *Sweeper) SweepOnce(ctx context.Context) (res SweepResult, err error) {
	start := time.Now()
	if s.leader != nil {
		ok, err := s.leader.IsLeader(ctx)
		if err != nil {
			return res, err
		}
		if !ok {
			s.log.Debug("sweep_skipped_not_leader")
			return res, nil
		}
	}
	res.Leader = true

	now := s.now()
	for {
		batch, err := s.ledger.LapsedReservations(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			break
		}

		var expired, skipped, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, r := range batch {
			g.Go(func() error {
				ok, err := s.engine.Expire(gctx, r.ID, now)
				switch {
				case err != nil:
					failed.Add(1)
					s.log.Warn("reservation_expire_failed",
						observability.F("reservation_id", r.ID),
						observability.F("error", err.Error()),
					)
				case ok:
					expired.Add(1)
				default:
					skipped.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		res.Expired += int(expired.Load())
		res.Skipped += int(skipped.Load())
		res.Failed += int(failed.Load())
		s.expired.Add(float64(expired.Load()))

		// Stop when the batch made no progress so failing rows cannot spin.
		if len(batch) < s.cfg.BatchSize || expired.Load() == 0 {
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	if n, err := s.purge(ctx, now); err != nil {
		s.log.Warn("reservation_purge_failed", observability.F("error", err.Error()))
	} else {
		res.Purged = n
	}

	s.log.Info("sweep_done",
		observability.F("expired", res.Expired),
		observability.F("skipped", res.Skipped),
		observability.F("failed", res.Failed),
		observability.F("purged", res.Purged),
		observability.F("latency_seconds", time.Since(start).Seconds()),
	)
	return res, nil
}

func (s *Sweeper) purge(ctx context.Context, now time.Time) (int, error) {
	last := s.lastPurge.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.cfg.PurgeEvery {
		return 0, nil
	}
	if !s.lastPurge.CompareAndSwap(last, now.UnixNano()) {
		return 0, nil
	}
	n, err := s.ledger.PurgeReservations(ctx, now.Add(-s.cfg.PurgeRetention))
	if err != nil {
		return 0, err
	}
	s.purged.Add(float64(n))
	return n, nil
}
