package masking

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// sqlDB narrows *sql.DB, mirroring internal/authz/store_postgres.go's
// sqlDB interface so both packages' tests use the same go-sqlmock shape.
type sqlDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresPolicyStore resolves masking policies from a single
// `masking_policies` table keyed `(organization_id NULLS LAST, field_path,
// revision)` (spec §9 "storage", SPEC_FULL.md §13). Connects via
// database/sql over the pgx stdlib driver, matching
// internal/authz/store_postgres.go.
type PostgresPolicyStore struct {
	db sqlDB
}

func NewPostgresPolicyStore(db *sql.DB) *PostgresPolicyStore {
	return &PostgresPolicyStore{db: db}
}

// activePolicySQL orders by (organization_id IS NOT NULL) DESC: a tenant
// row (organization_id = $2) outranks the global default (organization_id
// IS NULL) at the same field_path, and within either tier the highest
// revision wins.
const activePolicySQL = `
SELECT id, organization_id, field_path, revision, base_mask, unmasked_perms,
       partial_perms, strict_relation, zanzibar_checks, time_constraint,
       encryption_required, audit_required
FROM masking_policies
WHERE field_path = $1 AND active = true AND (organization_id = $2 OR organization_id IS NULL)
ORDER BY (organization_id IS NOT NULL) DESC, revision DESC
LIMIT 1`

func (s *PostgresPolicyStore) ActivePolicy(ctx context.Context, tenantID, fieldPath string) (*Policy, error) {
	rows, err := s.db.QueryContext(ctx, activePolicySQL, fieldPath, tenantID)
	if err != nil {
		return nil, rcerrors.Internal("masking.policy_query", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		p                   Policy
		orgID               sql.NullString
		baseMaskJSON        []byte
		unmaskedPermsJSON   []byte
		partialPermsJSON    []byte
		zanzibarChecksJSON  []byte
		timeConstraintJSON  []byte
		strictRelation      sql.NullString
	)

	if err := rows.Scan(&p.ID, &orgID, &p.FieldPath, &p.Revision, &baseMaskJSON, &unmaskedPermsJSON,
		&partialPermsJSON, &strictRelation, &zanzibarChecksJSON, &timeConstraintJSON,
		&p.EncryptionReqd, &p.AuditRequired); err != nil {
		return nil, rcerrors.Internal("masking.policy_scan", err)
	}

	p.Active = true
	if orgID.Valid {
		p.OrgID = orgID.String
	}
	if strictRelation.Valid {
		p.StrictRelation = strictRelation.String
	}

	if err := json.Unmarshal(baseMaskJSON, &p.BaseMask); err != nil {
		return nil, rcerrors.Internal("masking.policy_decode_base_mask", err)
	}
	if len(unmaskedPermsJSON) > 0 {
		if err := json.Unmarshal(unmaskedPermsJSON, &p.UnmaskedPerms); err != nil {
			return nil, rcerrors.Internal("masking.policy_decode_unmasked_perms", err)
		}
	}
	if len(partialPermsJSON) > 0 {
		if err := json.Unmarshal(partialPermsJSON, &p.PartialPerms); err != nil {
			return nil, rcerrors.Internal("masking.policy_decode_partial_perms", err)
		}
	}
	if len(zanzibarChecksJSON) > 0 {
		if err := json.Unmarshal(zanzibarChecksJSON, &p.ZanzibarChecks); err != nil {
			return nil, rcerrors.Internal("masking.policy_decode_zanzibar_checks", err)
		}
	}
	if len(timeConstraintJSON) > 0 {
		var tc TimeConstraint
		if err := json.Unmarshal(timeConstraintJSON, &tc); err != nil {
			return nil, rcerrors.Internal("masking.policy_decode_time_constraint", err)
		}
		p.TimeConstraint = &tc
	}

	return &p, rows.Err()
}

// PostgresOverrideStore resolves break-glass overrides from a
// `masking_overrides` table with a `valid_until - valid_from <= interval
// '8 hours'` check constraint (spec §3 hard bound), enforced at the
// database layer, not re-validated on read.
type PostgresOverrideStore struct {
	db sqlDB
}

func NewPostgresOverrideStore(db *sql.DB) *PostgresOverrideStore {
	return &PostgresOverrideStore{db: db}
}

const activeOverrideSQL = `
SELECT id, reason, valid_from, valid_until, approval_state, new_mask, access_count
FROM masking_overrides
WHERE tenant_id = $1 AND policy_id = $2 AND subject = $3
  AND approval_state = 'approved' AND valid_from <= $4 AND valid_until > $4
ORDER BY valid_from DESC
LIMIT 1`

func (s *PostgresOverrideStore) ActiveOverride(ctx context.Context, tenantID, policyID, subject string, asOf time.Time) (*Override, error) {
	rows, err := s.db.QueryContext(ctx, activeOverrideSQL, tenantID, policyID, subject, asOf)
	if err != nil {
		return nil, rcerrors.Internal("masking.override_query", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		o           Override
		newMaskJSON []byte
	)

	if err := rows.Scan(&o.ID, &o.Reason, &o.ValidFrom, &o.ValidUntil, &o.ApprovalState, &newMaskJSON, &o.AccessCount); err != nil {
		return nil, rcerrors.Internal("masking.override_scan", err)
	}

	o.PolicyID = policyID
	o.Subject = subject

	if len(newMaskJSON) > 0 {
		var m MaskPattern
		if err := json.Unmarshal(newMaskJSON, &m); err != nil {
			return nil, rcerrors.Internal("masking.override_decode_new_mask", err)
		}
		o.NewMask = &m
	}

	return &o, rows.Err()
}

const incrementAccessCountSQL = `
UPDATE masking_overrides SET access_count = access_count + 1 WHERE tenant_id = $1 AND id = $2`

func (s *PostgresOverrideStore) IncrementAccessCount(ctx context.Context, tenantID, overrideID string) error {
	if _, err := s.db.ExecContext(ctx, incrementAccessCountSQL, tenantID, overrideID); err != nil {
		return rcerrors.Internal("masking.override_increment", err)
	}

	return nil
}
