package secctx

import (
	"context"
	"database/sql"
	"encoding/json"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// certSQLDB narrows *sql.DB, mirroring internal/authz/store_postgres.go's
// sqlDB interface so this store's tests use the same go-sqlmock shape.
type certSQLDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresCertificateStore resolves the active certificate table from a
// single `client_certificates` table keyed on serial number, connecting
// via database/sql over the pgx stdlib driver like the authz and masking
// Postgres stores.
type PostgresCertificateStore struct {
	db certSQLDB
}

func NewPostgresCertificateStore(db *sql.DB) *PostgresCertificateStore {
	return &PostgresCertificateStore{db: db}
}

const lookupCertificateSQL = `
SELECT tenant_id, user_id, role, permissions, can_elevate, revoked
FROM client_certificates
WHERE serial = $1`

func (s *PostgresCertificateStore) Lookup(ctx context.Context, serial string) (*CertificateRecord, error) {
	rows, err := s.db.QueryContext(ctx, lookupCertificateSQL, serial)
	if err != nil {
		return nil, rcerrors.Internal("secctx.certificate_query", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		rec             CertificateRecord
		permissionsJSON []byte
		canElevateJSON  []byte
	)

	if err := rows.Scan(&rec.TenantID, &rec.UserID, &rec.Role, &permissionsJSON, &canElevateJSON, &rec.Revoked); err != nil {
		return nil, rcerrors.Internal("secctx.certificate_scan", err)
	}

	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &rec.Permissions); err != nil {
			return nil, rcerrors.Internal("secctx.certificate_permissions_decode", err)
		}
	}
	if len(canElevateJSON) > 0 {
		if err := json.Unmarshal(canElevateJSON, &rec.CanElevate); err != nil {
			return nil, rcerrors.Internal("secctx.certificate_can_elevate_decode", err)
		}
	}

	rec.Serial = serial

	return &rec, nil
}
