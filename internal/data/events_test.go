package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignGroupFirstWriterWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	eventID, groupID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE events SET group_id").
		WithArgs(eventID, groupID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assigned, err := m.AssignGroup(context.Background(), eventID, groupID)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignGroupAlreadyGrouped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	eventID, groupID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE events SET group_id").
		WithArgs(eventID, groupID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assigned, err := m.AssignGroup(context.Background(), eventID, groupID)
	require.NoError(t, err)
	assert.False(t, assigned, "the guard keeps the first group")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRetryClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	eventID := uuid.New()

	mock.ExpectExec("UPDATE events SET retry_count").
		WithArgs(eventID, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := m.ClaimRetry(context.Background(), eventID, 3)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRetryExhausted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	eventID := uuid.New()

	mock.ExpectExec("UPDATE events SET retry_count").
		WithArgs(eventID, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := m.ClaimRetry(context.Background(), eventID, 3)
	require.NoError(t, err)
	assert.False(t, claimed, "the guard refuses a spent budget")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = m.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestScanEventRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := EventModel{DB: db}
	id, detID, camID, groupID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	at := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "detection_id", "camera_id", "kind", "occurred_at", "description", "confidence",
		"provider", "analysis_mode", "fallback_reason", "cost_usd", "analysis_failed", "retry_count",
		"group_id", "created_at",
	}).AddRow(
		id.String(), detID.String(), camID.String(), DetectionPerson, at, "a person", 0.9,
		"gemini", "multi_frame", nil, 0.002, false, 0,
		groupID.String(), at,
	)
	mock.ExpectQuery("SELECT (.+) FROM events").WillReturnRows(rows)

	evt, err := m.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, DetectionPerson, evt.Kind)
	assert.Equal(t, "a person", *evt.Description)
	assert.Equal(t, "gemini", *evt.Provider)
	require.NotNil(t, evt.GroupID)
	assert.Equal(t, groupID, *evt.GroupID)
	assert.Nil(t, evt.FallbackReason)
}

func TestUpdateStatusUnknownCamera(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := CameraModel{DB: db}
	mock.ExpectExec("UPDATE cameras").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = m.UpdateStatus(context.Background(), uuid.New(), CameraStatusOnline)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
