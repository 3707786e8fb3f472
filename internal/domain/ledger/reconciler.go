package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/platform/chain"
)

// WriteRecorder appends a write event, with its tx hash, to a user's history.
type WriteRecorder interface {
	RecordWrite(ctx context.Context, userID uuid.UUID, txHash, comments string) error
}

// CacheInvalidator drops cached access decisions once the chain state moved.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tokenID, address string) error
}

// retryBackoff is indexed by attempt count and caps at its last entry.
var retryBackoff = []time.Duration{time.Second, 30 * time.Second, 5 * time.Minute}

const (
	maxAttempts  = 8
	claimBatch   = 50
	pollInterval = 2 * time.Second
)

// Reconciler drains the grant outbox: it submits pending jobs to the chain
// gateway, then polls submitted jobs until their tx confirms or fails. The
// history write event and the cache invalidation happen only on confirmation,
// and at most once per job.
type Reconciler struct {
	repo     Repository
	contract chain.AccessContract
	records  RecordDirectory
	history  WriteRecorder
	cache    CacheInvalidator
	tx       TxRunner
	interval time.Duration
	logger   zerolog.Logger
}

func NewReconciler(repo Repository, contract chain.AccessContract, records RecordDirectory,
	history WriteRecorder, cache CacheInvalidator, tx TxRunner, interval time.Duration,
	logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reconciler{
		repo:     repo,
		contract: contract,
		records:  records,
		history:  history,
		cache:    cache,
		tx:       tx,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled, running one pass per tick.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("grant reconciler started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("grant reconciler stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciler pass failed")
			}
		}
	}
}

// RunOnce processes every due outbox row. Per-job errors are recorded on the
// row and do not abort the pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	jobs, err := r.repo.DueJobs(ctx, time.Now().UTC(), claimBatch)
	if err != nil {
		return fmt.Errorf("claim due jobs: %w", err)
	}

	for _, job := range jobs {
		switch job.Status {
		case JobPending:
			err = r.submit(ctx, job)
		case JobSubmitted:
			err = r.poll(ctx, job)
		}
		if err != nil {
			r.logger.Error().Err(err).
				Str("job_id", job.ID.String()).
				Str("op", job.Op).
				Msg("outbox job processing failed")
		}
	}
	return nil
}

func (r *Reconciler) submit(ctx context.Context, job *GrantJob) error {
	var txHash string
	var err error
	switch job.Op {
	case OpGrant:
		txHash, err = r.contract.Grant(ctx, job.TokenID, job.GranteeAddress)
	case OpRevoke:
		txHash, err = r.contract.Revoke(ctx, job.TokenID, job.GranteeAddress)
	default:
		return r.repo.MarkJobFailed(ctx, job.ID, fmt.Sprintf("unknown op %q", job.Op))
	}
	if err != nil {
		return r.retry(ctx, job, err)
	}

	r.logger.Info().
		Str("job_id", job.ID.String()).
		Str("op", job.Op).
		Str("token_id", job.TokenID).
		Str("tx_hash", txHash).
		Msg("chain tx submitted")
	return r.repo.MarkJobSubmitted(ctx, job.ID, txHash, time.Now().UTC().Add(pollInterval))
}

func (r *Reconciler) poll(ctx context.Context, job *GrantJob) error {
	state, err := r.contract.TxStatus(ctx, job.TxHash)
	if err != nil {
		return r.retry(ctx, job, err)
	}

	switch state {
	case chain.TxConfirmed:
		return r.confirm(ctx, job)
	case chain.TxFailed:
		return r.repo.MarkJobFailed(ctx, job.ID, "transaction failed on chain")
	default:
		// Still in flight. Polling does not count against the retry cap.
		return r.repo.RescheduleJob(ctx, job.ID, job.LastError, job.Attempts,
			time.Now().UTC().Add(pollInterval))
	}
}

func (r *Reconciler) confirm(ctx context.Context, job *GrantJob) error {
	rec, err := r.records.ByID(ctx, job.RecordID)
	if err != nil {
		return err
	}
	action := "granted"
	if job.Op == OpRevoke {
		action = "revoked"
	}
	comments := fmt.Sprintf("access %s for %s on record %s", action, job.GranteeAddress, job.TokenID)

	// The status flip and the history write commit together. If the journal
	// insert fails the transaction rolls back, the job stays submitted and
	// the next poll retries; the CAS keeps the write from happening twice.
	var moved bool
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		moved, err = r.repo.MarkJobConfirmed(ctx, job.ID)
		if err != nil || !moved {
			return err
		}
		return r.history.RecordWrite(ctx, rec.OwnerID, job.TxHash, comments)
	})
	if err != nil || !moved {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, job.TokenID, job.GranteeAddress); err != nil {
			r.logger.Warn().Err(err).
				Str("token_id", job.TokenID).
				Msg("access cache invalidation failed")
		}
	}

	r.logger.Info().
		Str("job_id", job.ID.String()).
		Str("op", job.Op).
		Str("tx_hash", job.TxHash).
		Msg("chain tx confirmed")
	return nil
}

func (r *Reconciler) retry(ctx context.Context, job *GrantJob, cause error) error {
	attempts := job.Attempts + 1
	if attempts >= maxAttempts {
		r.logger.Error().Err(cause).
			Str("job_id", job.ID.String()).
			Int("attempts", attempts).
			Msg("outbox job failed permanently")
		return r.repo.MarkJobFailed(ctx, job.ID, cause.Error())
	}

	idx := attempts - 1
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}
	return r.repo.RescheduleJob(ctx, job.ID, cause.Error(), attempts,
		time.Now().UTC().Add(retryBackoff[idx]))
}
