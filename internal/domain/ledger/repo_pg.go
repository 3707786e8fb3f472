package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recordvault/recordvault/internal/platform/db"
	"github.com/recordvault/recordvault/internal/platform/httperr"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &ledgerRepoPG{pool: pool}
}

func (r *ledgerRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const reqCols = `id, record_id, organization_id, status, requested_at, processed_at`

func scanRequest(row pgx.Row) (*AccessRequest, error) {
	var req AccessRequest
	err := row.Scan(&req.ID, &req.RecordID, &req.OrganizationID,
		&req.Status, &req.RequestedAt, &req.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFoundf("access request not found")
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ledgerRepoPG) CreateRequest(ctx context.Context, req *AccessRequest) error {
	req.ID = uuid.New()
	req.Status = StatusPending
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO access_requests (id, record_id, organization_id, status)
		VALUES ($1,$2,$3,$4)
		RETURNING requested_at`,
		req.ID, req.RecordID, req.OrganizationID, req.Status).Scan(&req.RequestedAt)
	if isUniqueViolation(err) {
		return httperr.Conflictf("an open request for this record already exists")
	}
	return err
}

func (r *ledgerRepoPG) GetRequest(ctx context.Context, id uuid.UUID) (*AccessRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reqCols+` FROM access_requests WHERE id = $1`, id))
}

func (r *ledgerRepoPG) FindOpenRequest(ctx context.Context, recordID, organizationID uuid.UUID) (*AccessRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+reqCols+` FROM access_requests
		WHERE record_id = $1 AND organization_id = $2 AND status = $3`,
		recordID, organizationID, StatusPending))
}

func (r *ledgerRepoPG) HasApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM access_requests
			WHERE record_id = $1 AND organization_id = $2 AND status = $3
		)`, recordID, organizationID, StatusApproved).Scan(&exists)
	return exists, err
}

// TransitionRequest moves a pending request to its terminal status. The
// WHERE clause is the compare: a request already resolved is left untouched
// and false is returned.
func (r *ledgerRepoPG) TransitionRequest(ctx context.Context, id uuid.UUID, to string, processedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_requests SET status = $2, processed_at = $3
		WHERE id = $1 AND status = $4`,
		id, to, processedAt, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ledgerRepoPG) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM access_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFoundf("access request not found")
	}
	return nil
}

func (r *ledgerRepoPG) DeleteApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM access_requests
		WHERE record_id = $1 AND organization_id = $2 AND status = $3`,
		recordID, organizationID, StatusApproved)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ledgerRepoPG) ListRequestsByOrganization(ctx context.Context, organizationID uuid.UUID, status string, limit, offset int) ([]*AccessRequest, int, error) {
	return r.listRequests(ctx, `organization_id = $1`, organizationID, status, limit, offset)
}

func (r *ledgerRepoPG) ListRequestsByOwner(ctx context.Context, ownerID uuid.UUID, status string, limit, offset int) ([]*AccessRequest, int, error) {
	return r.listRequests(ctx,
		`record_id IN (SELECT id FROM medical_records WHERE owner_id = $1)`,
		ownerID, status, limit, offset)
}

func (r *ledgerRepoPG) listRequests(ctx context.Context, where string, key uuid.UUID, status string, limit, offset int) ([]*AccessRequest, int, error) {
	filter := ` AND ($2 = '' OR status = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM access_requests WHERE `+where+filter,
		key, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reqCols+` FROM access_requests WHERE `+where+filter+`
		 ORDER BY requested_at DESC LIMIT $3 OFFSET $4`,
		key, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

const notifCols = `id, record_id, organization_id, user_id, request_id, message, status, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecordID, &n.OrganizationID, &n.UserID,
		&n.RequestID, &n.Message, &n.Status, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFoundf("notification not found")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *ledgerRepoPG) CreateNotification(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	n.Status = StatusPending
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (id, record_id, organization_id, user_id, request_id, message, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		n.ID, n.RecordID, n.OrganizationID, n.UserID, n.RequestID,
		n.Message, n.Status).Scan(&n.CreatedAt)
}

func (r *ledgerRepoPG) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE id = $1`, id))
}

func (r *ledgerRepoPG) TransitionNotification(ctx context.Context, id uuid.UUID, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notifications SET status = $2
		WHERE id = $1 AND status = $3`,
		id, to, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ledgerRepoPG) ResolveNotificationsForRequest(ctx context.Context, requestID uuid.UUID, to string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE notifications SET status = $2
		WHERE request_id = $1 AND status = $3`,
		requestID, to, StatusPending)
	return err
}

func (r *ledgerRepoPG) ListNotificationsByAddressee(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*Notification, int, error) {
	filter := `user_id = $1 AND ($2 = '' OR status = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE `+filter,
		userID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE `+filter+`
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

const jobCols = `id, record_id, token_id, grantee_address, op, status, attempts,
	next_attempt_at, tx_hash, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*GrantJob, error) {
	var j GrantJob
	err := row.Scan(&j.ID, &j.RecordID, &j.TokenID, &j.GranteeAddress,
		&j.Op, &j.Status, &j.Attempts, &j.NextAttemptAt,
		&j.TxHash, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFoundf("grant job not found")
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *ledgerRepoPG) EnqueueJob(ctx context.Context, job *GrantJob) error {
	job.ID = uuid.New()
	job.Status = JobPending
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO grant_outbox (id, record_id, token_id, grantee_address, op, status, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		RETURNING next_attempt_at, created_at, updated_at`,
		job.ID, job.RecordID, job.TokenID, job.GranteeAddress,
		job.Op, job.Status).Scan(&job.NextAttemptAt, &job.CreatedAt, &job.UpdatedAt)
}

func (r *ledgerRepoPG) DueJobs(ctx context.Context, now time.Time, limit int) ([]*GrantJob, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+jobCols+` FROM grant_outbox
		WHERE status IN ($1, $2) AND next_attempt_at <= $3
		ORDER BY next_attempt_at
		LIMIT $4`,
		JobPending, JobSubmitted, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*GrantJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *ledgerRepoPG) MarkJobSubmitted(ctx context.Context, id uuid.UUID, txHash string, nextAttemptAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE grant_outbox
		SET status = $2, tx_hash = $3, last_error = '', next_attempt_at = $4, updated_at = now()
		WHERE id = $1`,
		id, JobSubmitted, txHash, nextAttemptAt)
	return err
}

// MarkJobConfirmed is a CAS on submitted so a confirmation is applied at
// most once even if two reconciler passes see the same job.
func (r *ledgerRepoPG) MarkJobConfirmed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE grant_outbox SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, JobConfirmed, JobSubmitted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ledgerRepoPG) MarkJobFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE grant_outbox SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1`,
		id, JobFailed, lastError)
	return err
}

func (r *ledgerRepoPG) RescheduleJob(ctx context.Context, id uuid.UUID, lastError string, attempts int, nextAttemptAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE grant_outbox
		SET attempts = $2, last_error = $3, next_attempt_at = $4, updated_at = now()
		WHERE id = $1`,
		id, attempts, lastError, nextAttemptAt)
	return err
}

func (r *ledgerRepoPG) ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*GrantJob, int, error) {
	where := `record_id IN (SELECT id FROM medical_records WHERE owner_id = $1)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM grant_outbox WHERE `+where,
		ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+jobCols+` FROM grant_outbox WHERE `+where+`
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*GrantJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}
