package authz

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreWriteInsertsAndCommits(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO authz_tuples`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT nextval`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectCommit()

	store := NewPostgresStore(db)

	zookie, err := store.Write(context.Background(), "tenant-a", []TupleDelta{
		{Tuple: Tuple{
			Subject:  SubjectRef{Type: "user", ID: "alice"},
			Relation: "owner",
			Object:   ObjectRef{Namespace: "patient", Type: "patient", ID: "p1"},
		}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, zookie)

	gotTenant, gotVersion, err := decodeZookie(zookie)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", gotTenant)
	assert.Equal(t, zookieVersion(7), gotVersion)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreWriteDeletesTuple(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM authz_tuples`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT nextval`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(8)))
	mock.ExpectCommit()

	store := NewPostgresStore(db)

	_, err = store.Write(context.Background(), "tenant-a", []TupleDelta{
		{
			Remove: true,
			Tuple: Tuple{
				Subject:  SubjectRef{Type: "user", ID: "alice"},
				Relation: "owner",
				Object:   ObjectRef{Namespace: "patient", Type: "patient", ID: "p1"},
			},
		},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreWriteRollsBackOnTenantMismatch(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	store := NewPostgresStore(db)

	_, err = store.Write(context.Background(), "tenant-a", []TupleDelta{
		{Tuple: Tuple{
			TenantID: "tenant-b",
			Subject:  SubjectRef{Type: "user", ID: "alice"},
			Relation: "owner",
			Object:   ObjectRef{Namespace: "patient", Type: "patient", ID: "p1"},
		}},
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreWriteRollsBackOnExecError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO authz_tuples`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewPostgresStore(db)

	_, err = store.Write(context.Background(), "tenant-a", []TupleDelta{
		{Tuple: Tuple{
			Subject:  SubjectRef{Type: "user", ID: "alice"},
			Relation: "owner",
			Object:   ObjectRef{Namespace: "patient", Type: "patient", ID: "p1"},
		}},
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTuplesOnRelation(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"subject_type", "subject_id", "subject_relation", "object_namespace", "object_type", "object_id", "expires_at"}).
		AddRow("user", "alice", "", "patient", "patient", "p1", nil)

	mock.ExpectQuery(`SELECT subject_type`).
		WillReturnRows(rows)

	store := NewPostgresStore(db)

	tuples, err := store.TuplesOnRelation(context.Background(), "tenant-a",
		ObjectRef{Namespace: "patient", Type: "patient", ID: "p1"}, "owner", time.Now().UTC(), 0)

	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "alice", tuples[0].Subject.ID)
	assert.Equal(t, "tenant-a", tuples[0].TenantID)
	assert.Nil(t, tuples[0].ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreObjectIDsForType(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"object_id"}).AddRow("p1").AddRow("p2")

	mock.ExpectQuery(`SELECT DISTINCT object_id`).
		WillReturnRows(rows)

	store := NewPostgresStore(db)

	ids, err := store.ObjectIDsForType(context.Background(), "tenant-a", "patient", time.Now().UTC(), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
