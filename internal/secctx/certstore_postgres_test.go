package secctx

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCertificateStoreLookupReturnsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM client_certificates`).
		WithArgs("aa:bb").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "user_id", "role", "permissions", "can_elevate", "revoked"}).
			AddRow("tenant-a", "user-1", "nurse", []byte(`["view_phi"]`), []byte(`["treating_provider"]`), false))

	store := NewPostgresCertificateStore(db)

	rec, err := store.Lookup(context.Background(), "aa:bb")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "tenant-a", rec.TenantID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "nurse", rec.Role)
	assert.Equal(t, []string{"view_phi"}, rec.Permissions)
	assert.Equal(t, []string{"treating_provider"}, rec.CanElevate)
	assert.False(t, rec.Revoked)
	assert.Equal(t, "aa:bb", rec.Serial)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCertificateStoreLookupReturnsNilForUnknownSerial(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM client_certificates`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "user_id", "role", "permissions", "can_elevate", "revoked"}))

	store := NewPostgresCertificateStore(db)

	rec, err := store.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgresCertificateStoreLookupPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM client_certificates`).
		WillReturnError(assertErr{})

	store := NewPostgresCertificateStore(db)

	_, err = store.Lookup(context.Background(), "aa:bb")
	assert.Error(t, err)
}
