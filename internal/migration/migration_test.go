package migration

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosplit/internal"
	"gosplit/internal/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func quietRunner() *MigrationRunner {
	return NewRunner(internal.NewLoggerTo(io.Discard, internal.LogLevelError))
}

func TestRun_AppliesPendingSteps(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, checksum FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow("0001", Steps[0].Checksum()))

	for _, step := range Steps[1:] {
		mock.ExpectBegin()
		for range step.Statements {
			mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectExec(`INSERT INTO schema_migrations \(version, checksum, applied_at\) VALUES \(\$1, \$2, \$3\)`).
			WithArgs(step.Version, step.Checksum(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, quietRunner().Run(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackFailedStep(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, checksum FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS experiments").WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := quietRunner().Run(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001")
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionAndChecksum(t *testing.T) {
	assert.Equal(t, "0003", quietRunner().Version())
	assert.Len(t, Steps[0].Checksum(), 64)
	assert.NotEqual(t, Steps[0].Checksum(), Steps[1].Checksum())
}
