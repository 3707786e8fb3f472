package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recordvault/recordvault/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const eventCols = `id, user_id, event_type, tx_hash, comments, performed_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.UserID, &ev.EventType, &ev.TxHash,
		&ev.Comments, &ev.PerformedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *historyRepoPG) Create(ctx context.Context, ev *Event) error {
	ev.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO history_events (id, user_id, event_type, tx_hash, comments)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING performed_at`,
		ev.ID, ev.UserID, ev.EventType, ev.TxHash, ev.Comments).Scan(&ev.PerformedAt)
}

func (r *historyRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]*Event, int, error) {
	filter := `user_id = $1 AND event_type = $2`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM history_events WHERE `+filter,
		userID, eventType).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM history_events WHERE `+filter+`
		 ORDER BY performed_at DESC LIMIT $3 OFFSET $4`,
		userID, eventType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ev)
	}
	return items, total, rows.Err()
}
