package secctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// dbTx is the narrow slice of pgx.Tx the projector needs, kept separate
// from pgx.Tx itself so tests can supply a fake without implementing that
// interface's full surface (Prepare, SendBatch, CopyFrom, LargeObjects...).
type dbTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// dbPool is the narrow slice of *pgxpool.Pool the projector needs.
type dbPool interface {
	Begin(ctx context.Context) (dbTx, error)
}

// poolAdapter adapts *pgxpool.Pool (whose Begin returns the concrete pgx.Tx
// interface) to dbPool, since Go does not let *pgxpool.Pool satisfy dbPool
// directly when the return types differ even though pgx.Tx's method set is
// a superset of dbTx.
type poolAdapter struct {
	pool *pgxpool.Pool
}

func (a poolAdapter) Begin(ctx context.Context) (dbTx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

// Tx is the narrow handle step 8 hands to the domain handler: an open
// postgres transaction whose session variables already enforce RLS, plus
// Commit/Rollback. Handlers never see the underlying pgx.Tx directly so
// they cannot bypass the SET LOCAL projection by opening their own
// connection.
type Tx struct {
	tx dbTx
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// SessionProjector opens a transaction and projects the request's security
// context onto it via SET LOCAL, per spec §4.E step 7: the variables
// `app.current_user_id`, `app.organization_id`, `app.role`, `app.elevated`,
// `app.allowed_resources`, `app.access_until`, read back by each table's
// row-security predicate `id ∈ allowed_resources ∨ (elevated ∧ role ∈
// {...}) ∨ (access_until > now())`.
type SessionProjector struct {
	pool dbPool
}

func NewSessionProjector(pool *pgxpool.Pool) *SessionProjector {
	return &SessionProjector{pool: poolAdapter{pool: pool}}
}

// Open begins a transaction scoped to rc and sets its RLS session
// variables. The caller must Commit or Rollback the returned Tx.
func (p *SessionProjector) Open(ctx context.Context, rc *RequestContext) (*Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, rcerrors.Internal("secctx.rls_begin_failed", err)
	}

	if err := setSessionVars(ctx, tx, rc); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	return &Tx{tx: tx}, nil
}

func setSessionVars(ctx context.Context, tx dbTx, rc *RequestContext) error {
	elevated := rc.Elevation.Active(rc.Timestamp)

	accessUntil := "1970-01-01T00:00:00Z"
	if elevated {
		accessUntil = rc.Elevation.ActiveUntil.UTC().Format(time.RFC3339)
	}

	vars := map[string]string{
		"app.current_user_id":   rc.Subject.UserID,
		"app.organization_id":   rc.Subject.TenantID,
		"app.role":              rc.Subject.Role,
		"app.elevated":          fmt.Sprintf("%t", elevated),
		"app.allowed_resources": strings.Join(rc.AllowedResources, ","),
		"app.access_until":      accessUntil,
	}

	for name, value := range vars {
		// SET LOCAL does not accept bind parameters for the value in all
		// drivers' simple-query paths; set_config(..., true) does and is
		// the documented way to parameterize a session-scoped GUC.
		if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", name, value); err != nil {
			return rcerrors.Internal("secctx.rls_set_local_failed", err)
		}
	}

	return nil
}
