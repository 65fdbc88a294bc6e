package authz

import (
	"context"
	"database/sql"
	"time"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// sqlDB narrows *sql.DB to what PostgresStore needs, so tests can swap in
// go-sqlmock the same way the teacher's postgres adapters do.
type sqlDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PostgresStore is the TupleStore backed by a single normalized table with
// the indices spec §6 names: (tenant, object_type, object_id, relation),
// (tenant, subject_type, subject_id, relation), and a partial index
// excluding expired rows. Connects via database/sql over the pgx stdlib
// driver, matching the teacher's postgres adapters (*sql.DB + sqlmock in
// tests) rather than a pgxpool.Pool, which go-sqlmock cannot stand in for.
type PostgresStore struct {
	db sqlDB
}

// NewPostgresStore wraps an existing *sql.DB (opened with
// sql.Open("pgx", dsn) against github.com/jackc/pgx/v5/stdlib).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertTupleSQL = `
INSERT INTO authz_tuples
	(tenant_id, subject_type, subject_id, subject_relation, relation, object_namespace, object_type, object_id, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tenant_id, subject_type, subject_id, subject_relation, relation, object_namespace, object_type, object_id)
DO UPDATE SET expires_at = EXCLUDED.expires_at`

const deleteTupleSQL = `
DELETE FROM authz_tuples
WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3 AND subject_relation = $4
  AND relation = $5 AND object_namespace = $6 AND object_type = $7 AND object_id = $8`

const nextZookieVersionSQL = `SELECT nextval('authz_zookie_seq')`

// Write applies deltas inside a single transaction, per spec §4.C
// "linearizable within a tenant via a single transactional store".
func (s *PostgresStore) Write(ctx context.Context, tenantID string, deltas []TupleDelta) (Zookie, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", rcerrors.Internal("authz.write_begin_tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range deltas {
		t := d.Tuple
		if t.TenantID != "" && t.TenantID != tenantID {
			return "", rcerrors.Validation("authz.tenant_mismatch", nil, "tuple tenant does not match write tenant")
		}

		if d.Remove {
			_, err := tx.ExecContext(ctx, deleteTupleSQL, tenantID, t.Subject.Type, t.Subject.ID, t.Subject.Relation, t.Relation, t.Object.Namespace, t.Object.Type, t.Object.ID)
			if err != nil {
				return "", rcerrors.Internal("authz.write_delete", err)
			}
			continue
		}

		var expiresAt any
		if t.ExpiresAt != nil {
			expiresAt = *t.ExpiresAt
		}

		_, err := tx.ExecContext(ctx, insertTupleSQL, tenantID, t.Subject.Type, t.Subject.ID, t.Subject.Relation, t.Relation, t.Object.Namespace, t.Object.Type, t.Object.ID, expiresAt)
		if err != nil {
			return "", rcerrors.Internal("authz.write_insert", err)
		}
	}

	var version int64
	row := tx.QueryRowContext(ctx, nextZookieVersionSQL)
	if err := row.Scan(&version); err != nil {
		return "", rcerrors.Internal("authz.write_zookie", err)
	}

	if err := tx.Commit(); err != nil {
		return "", rcerrors.Internal("authz.write_commit", err)
	}

	return encodeZookie(tenantID, zookieVersion(version)), nil
}

const selectTuplesOnRelationSQL = `
SELECT subject_type, subject_id, subject_relation, object_namespace, object_type, object_id, expires_at
FROM authz_tuples
WHERE tenant_id = $1 AND object_namespace = $2 AND object_type = $3 AND object_id = $4 AND relation = $5
  AND (expires_at IS NULL OR expires_at > $6)`

// minVersion is accepted to satisfy TupleStore but unused: a single
// linearizable Postgres instance already observes every prior commit, so
// there is no staler replica to guard against here.
func (s *PostgresStore) TuplesOnRelation(ctx context.Context, tenantID string, object ObjectRef, relation string, asOf time.Time, _ zookieVersion) ([]Tuple, error) {
	rows, err := s.db.QueryContext(ctx, selectTuplesOnRelationSQL, tenantID, object.Namespace, object.Type, object.ID, relation, asOf)
	if err != nil {
		return nil, rcerrors.Internal("authz.read_tuples", err)
	}
	defer rows.Close()

	var out []Tuple
	for rows.Next() {
		var t Tuple
		var expiresAt sql.NullTime

		if err := rows.Scan(&t.Subject.Type, &t.Subject.ID, &t.Subject.Relation, &t.Object.Namespace, &t.Object.Type, &t.Object.ID, &expiresAt); err != nil {
			return nil, rcerrors.Internal("authz.scan_tuple", err)
		}

		t.TenantID = tenantID
		t.Relation = relation
		if expiresAt.Valid {
			t.ExpiresAt = &expiresAt.Time
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, rcerrors.Internal("authz.read_tuples_rows", err)
	}

	return out, nil
}

const selectObjectIDsForTypeSQL = `
SELECT DISTINCT object_id
FROM authz_tuples
WHERE tenant_id = $1 AND object_type = $2 AND (expires_at IS NULL OR expires_at > $3)`

func (s *PostgresStore) ObjectIDsForType(ctx context.Context, tenantID, objectType string, asOf time.Time, _ zookieVersion) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectObjectIDsForTypeSQL, tenantID, objectType, asOf)
	if err != nil {
		return nil, rcerrors.Internal("authz.read_object_ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, rcerrors.Internal("authz.scan_object_id", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, rcerrors.Internal("authz.read_object_ids_rows", err)
	}

	return ids, nil
}
