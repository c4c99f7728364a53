// Package worker runs the analytics pipeline: read session batches from the
// stream, normalize, enrich, score, persist, then ack. Delivery is
// at-least-once; persistence is idempotent by sess_uuid, so redelivered
// entries are harmless.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/snarelab/hivetrace/internal/config"
	"github.com/snarelab/hivetrace/internal/enrich"
	"github.com/snarelab/hivetrace/internal/evaluate"
	"github.com/snarelab/hivetrace/internal/geoip"
	"github.com/snarelab/hivetrace/internal/metrics"
	"github.com/snarelab/hivetrace/internal/model"
	"github.com/snarelab/hivetrace/internal/normalize"
	"github.com/snarelab/hivetrace/internal/store"
	"github.com/snarelab/hivetrace/internal/stream"
)

// transientBackoff is the pause after a broker or disk failure before the
// loop retries.
const transientBackoff = 5 * time.Second

// Worker consumes the session stream as part of a consumer group.
type Worker struct {
	stream   *stream.Client
	store    *store.Store
	sweeper  *store.Sweeper
	enricher *enrich.Enricher
	geo      geoip.Resolver
	cfg      config.WorkerConfig
	logger   *slog.Logger
	now      func() time.Time

	lastSweepDate string
}

// New assembles a worker. A nil geo resolver disables lookup; sessions keep
// the agent-supplied location.
func New(sc *stream.Client, st *store.Store, sw *store.Sweeper, geo geoip.Resolver, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if geo == nil {
		geo = geoip.NopResolver{}
	}
	return &Worker{
		stream:   sc,
		store:    st,
		sweeper:  sw,
		enricher: enrich.New(nil),
		geo:      geo,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run consumes batches until ctx is cancelled. Transient failures pause and
// retry; they never crash the loop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureGroup(ctx, w.cfg.Group); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	w.logger.Info("worker started",
		"group", w.cfg.Group,
		"consumer", w.cfg.ConsumerName,
		"batch_size", w.cfg.BatchSize,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "reason", "context cancelled")
			return nil
		default:
		}

		w.sweepIfDue()

		entries, err := w.claimAndRead(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("stream read failed", "error", err)
			metrics.SessionsProcessed.WithLabelValues(metrics.OutcomeTransient).Inc()
			sleepCtx(ctx, transientBackoff)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		w.processBatch(ctx, entries)
	}
}

// claimAndRead first adopts entries stuck pending on dead consumers, then
// blocks for new ones.
func (w *Worker) claimAndRead(ctx context.Context) ([]stream.Entry, error) {
	if w.cfg.ClaimMinIdle > 0 {
		reclaimed, err := w.stream.Reclaim(ctx, w.cfg.Group, w.cfg.ConsumerName,
			time.Duration(w.cfg.ClaimMinIdle)*time.Millisecond, int64(w.cfg.BatchSize))
		if err != nil {
			w.logger.Warn("reclaim failed", "error", err)
		} else if len(reclaimed) > 0 {
			w.logger.Info("reclaimed pending entries", "count", len(reclaimed))
			return reclaimed, nil
		}
	}

	return w.stream.ReadBatch(ctx, w.cfg.Group, w.cfg.ConsumerName,
		int64(w.cfg.BatchSize), time.Duration(w.cfg.BlockMS)*time.Millisecond)
}

// processBatch runs the pipeline over one batch. Input errors are acked and
// dropped; processable sessions are acked only after they hit disk.
func (w *Worker) processBatch(ctx context.Context, entries []stream.Entry) {
	started := w.now()

	var evaluated []*model.EvaluatedSession
	var ackIDs []string

	for _, entry := range entries {
		sess, outcome := w.processEntry(entry)
		metrics.SessionsProcessed.WithLabelValues(outcome).Inc()

		switch outcome {
		case metrics.OutcomeOK:
			evaluated = append(evaluated, sess)
			ackIDs = append(ackIDs, entry.ID)
		case metrics.OutcomeInputErr:
			// Poison input; redelivery would fail identically.
			ackIDs = append(ackIDs, entry.ID)
		default:
			// Leave pending for redelivery.
		}
	}

	if len(evaluated) > 0 {
		if err := w.store.PersistBatch(evaluated); err != nil {
			w.logger.Error("persist failed, batch left pending", "error", err)
			metrics.SessionsProcessed.WithLabelValues(metrics.OutcomeTransient).Inc()
			sleepCtx(ctx, transientBackoff)
			return
		}
		for _, sess := range evaluated {
			metrics.RiskScores.Observe(float64(sess.RiskScore))
			if sess.AlertLevel == model.ThreatCritical || sess.AlertLevel == model.ThreatHigh {
				metrics.AlertsGenerated.WithLabelValues(sess.AlertLevel).Inc()
			}
		}
	}

	if err := w.stream.Ack(ctx, w.cfg.Group, ackIDs...); err != nil {
		// Persisted but unacked: the entry comes back and overwrites itself.
		w.logger.Warn("ack failed", "error", err, "count", len(ackIDs))
	}

	metrics.BatchDuration.Observe(w.now().Sub(started).Seconds())
	w.logger.Info("batch processed",
		"entries", len(entries),
		"persisted", len(evaluated),
		"acked", len(ackIDs),
		"duration", w.now().Sub(started),
	)
}

// processEntry runs one session through the full pipeline. A panic anywhere
// in the pipeline is contained here and leaves the entry pending.
func (w *Worker) processEntry(entry stream.Entry) (sess *model.EvaluatedSession, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panicked", "entry_id", entry.ID, "panic", r)
			sess, outcome = nil, metrics.OutcomePanic
		}
	}()

	var raw model.RawSession
	if err := json.Unmarshal(entry.Payload, &raw); err != nil {
		w.logger.Warn("undecodable session dropped", "entry_id", entry.ID, "error", err)
		return nil, metrics.OutcomeInputErr
	}

	canonical, err := normalize.Normalize(&raw, w.now())
	if err != nil {
		w.logger.Warn("normalization failed, session dropped", "entry_id", entry.ID, "error", err)
		return nil, metrics.OutcomeInputErr
	}
	if err := normalize.Validate(canonical); err != nil {
		w.logger.Warn("invalid session dropped", "entry_id", entry.ID, "error", err)
		return nil, metrics.OutcomeInputErr
	}

	// Fill in geo only when the agent sent none.
	if canonical.Location.Country == "" && canonical.Location.CountryCode == "" {
		if loc, ok := w.geo.Resolve(canonical.PeerIP); ok {
			canonical.Location = loc
		}
	}

	enriched := w.enricher.Enrich(canonical)
	return evaluate.Evaluate(enriched), metrics.OutcomeOK
}

// sweepIfDue runs the retention sweeper once per UTC day.
func (w *Worker) sweepIfDue() {
	today := w.now().UTC().Format(store.DateFormat)
	if today == w.lastSweepDate {
		return
	}
	w.lastSweepDate = today
	if removed := w.sweeper.Sweep(w.now()); removed > 0 {
		w.logger.Info("retention sweep complete", "removed_partitions", removed)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
