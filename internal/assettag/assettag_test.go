package assettag

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern(t *testing.T) {
	re := regexp.MustCompile(Pattern("LAP.X"))
	assert.True(t, re.MatchString("LAP.X-0"))
	assert.True(t, re.MatchString("LAP.X-42"))
	assert.False(t, re.MatchString("LAPAX-1"), "dot must be literal")
	assert.False(t, re.MatchString("LAP.X-"))
	assert.False(t, re.MatchString("LAP.X-1a"))
	assert.False(t, re.MatchString("XLAP.X-1"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "MBP14-0", Format("MBP14", 0))
	assert.Equal(t, "MBP14-12", Format("MBP14", 12))
}

func TestNext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(LockQuery)).
		WithArgs("3:MBP14").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX`).
		WithArgs(int64(3), "^MBP14-[0-9]+$").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(5)))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	tag, err := Next(context.Background(), tx, 3, " MBP14 ")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "MBP14-5", tag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextWithoutSKU(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tag, err := Next(context.Background(), db, 1, "  ")
	require.NoError(t, err)
	assert.Empty(t, tag)
	assert.NoError(t, mock.ExpectationsWereMet())
}
