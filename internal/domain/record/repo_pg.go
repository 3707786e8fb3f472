package record

import (
	"context"
	"errors"

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

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recCols = `id, owner_id, token_id, key_envelope, title, description, cid, created_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.TokenID, &rec.KeyEnvelope,
		&rec.Title, &rec.Description, &rec.CID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFoundf("record not found")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, owner_id, token_id, key_envelope, title, description, cid)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		rec.ID, rec.OwnerID, rec.TokenID, rec.KeyEnvelope,
		rec.Title, rec.Description, rec.CID).Scan(&rec.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return httperr.Conflictf("token %s already registered", rec.TokenID)
	}
	return err
}

func (r *recordRepoPG) GetByTokenID(ctx context.Context, tokenID string) (*MedicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM medical_records WHERE token_id = $1`, tokenID))
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM medical_records WHERE id = $1`, id))
}

func (r *recordRepoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_records WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recCols+` FROM medical_records WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
