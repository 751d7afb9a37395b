package store

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-gis/awdb-station-sync/internal/domain"
)

func testStore() *Store {
	return &Store{schema: "awdb", statementTimeout: 30 * time.Second, lockTimeout: 30 * time.Second, logger: slog.Default()}
}

func TestTableIdent(t *testing.T) {
	s := testStore()

	table, err := s.tableIdent("SNTL")
	require.NoError(t, err)
	assert.Equal(t, `"awdb"."stations_sntl"`, table)
}

func TestTableIdent_RejectsUnsafeNetworkCode(t *testing.T) {
	s := testStore()
	for _, network := range []string{"", "SN TL", `SN"TL`, "sntl;drop table x"} {
		_, err := s.tableIdent(network)
		assert.Error(t, err, "network %q", network)
	}
}

func TestApplyError_LockTimeoutMapsToErrTableLocked(t *testing.T) {
	s := testStore()
	pgErr := &pgconn.PgError{Code: lockNotAvailable, Message: "canceling statement due to lock timeout"}

	err := s.applyError("SNTL", "apply", pgErr)

	assert.ErrorIs(t, err, ErrTableLocked)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "SNTL", perr.Network)
	assert.Equal(t, "apply", perr.Op)
}

func TestApplyError_OtherErrorsStayPersistence(t *testing.T) {
	s := testStore()
	err := s.applyError("SNOW", "commit", errors.New("connection reset"))

	assert.NotErrorIs(t, err, ErrTableLocked)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "SNOW", perr.Network)
	assert.Contains(t, err.Error(), "network SNOW")
}

func TestInsertArgs_NullableStringsBecomeNil(t *testing.T) {
	st := domain.Station{
		Triplet:     "302:OR:SNTL",
		StationID:   "302",
		State:       "OR",
		NetworkCode: "SNTL",
		// Name and the other optional strings left empty.
		Latitude:  45.2,
		Longitude: -117.2,
		BeginDate: time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   domain.ActiveEndDate,
	}

	args := insertArgs(st)
	require.Len(t, args, 23)
	assert.Equal(t, "302:OR:SNTL", args[0])
	assert.Nil(t, args[4], "empty name should be stored as NULL")
	assert.Nil(t, args[5], "empty acton id should be stored as NULL")
	assert.Equal(t, 45.2, args[14])
	assert.Equal(t, -117.2, args[15])
}

func TestAsUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	scanned := time.Date(2100, 1, 1, 0, 0, 0, 0, loc)

	got := asUTC(scanned)
	assert.True(t, got.Equal(domain.ActiveEndDate))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, isUndefinedTable(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, isUndefinedTable(errors.New("nope")))
}
