package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"alerts-service/apperrors"
	"alerts-service/config"
	"alerts-service/database"
	"alerts-service/models"
	"alerts-service/proofs"
	"alerts-service/proofstore"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg *config.Config) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files := proofstore.New(t.TempDir(), "/uploads")
	require.NoError(t, files.EnsureFolders())

	svc := New(cfg, database.NewAlertStore(db), files,
		proofs.NewPipeline(files, "/nonexistent/ffmpeg"), nil, nil)
	return svc, mock
}

func creationConfig() *config.Config {
	return &config.Config{
		ProcessTimeoutBase:    30 * time.Second,
		ProcessTimeoutPerFile: 30 * time.Second,
		ProcessWorkers:        2,
		DefaultNearbyMeters:   5000,
	}
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32)), nil))
	return buf.Bytes()
}

func expectAlertInsert(mock sqlmock.Sqlmock, proofInserts int) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	for i := 0; i < proofInserts; i++ {
		mock.ExpectExec("INSERT INTO alert_proofs").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()
}

func TestCreateAlertUploadedFilesWinOverInlineProofs(t *testing.T) {
	svc, mock := newTestService(t, creationConfig())

	inlineURL := "/uploads/photos/pre-uploaded.jpg"
	req := &models.CreateAlertRequest{
		Category:    "litter",
		Coordinates: []interface{}{19.26, 42.44},
		Proofs: []models.Proof{
			{Type: models.ProofTypePhoto, URL: inlineURL, Size: 77},
		},
	}
	files := []proofs.RawFile{
		{OriginalName: "fresh.jpg", MimeType: "image/jpeg", Data: smallJPEG(t)},
	}

	// One proof row only: the processed upload, never the inline metadata.
	expectAlertInsert(mock, 1)

	alert, err := svc.CreateAlert(context.Background(), req, files, "citizen-1")
	require.NoError(t, err)

	require.Len(t, alert.Proofs, 1)
	assert.True(t, strings.HasPrefix(alert.Proofs[0].URL, "/uploads/photos/"),
		"expected a freshly stored photo, got %s", alert.Proofs[0].URL)
	assert.NotEqual(t, inlineURL, alert.Proofs[0].URL)
	assert.NotNil(t, alert.Proofs[0].Thumbnail)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertInlineProofsKeptVerbatim(t *testing.T) {
	svc, mock := newTestService(t, creationConfig())

	req := &models.CreateAlertRequest{
		Category:    "litter",
		Coordinates: []interface{}{19.26, 42.44},
		Proofs: []models.Proof{
			{Type: models.ProofTypePhoto, URL: "/uploads/photos/pre.jpg", Size: 77},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO alert_proofs").
		WithArgs(sqlmock.AnyArg(), models.ProofTypePhoto, "/uploads/photos/pre.jpg", nil, int64(77)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	alert, err := svc.CreateAlert(context.Background(), req, nil, "citizen-1")
	require.NoError(t, err)
	require.Len(t, alert.Proofs, 1)
	assert.Equal(t, "/uploads/photos/pre.jpg", alert.Proofs[0].URL)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertWithoutProofs(t *testing.T) {
	svc, mock := newTestService(t, creationConfig())

	req := &models.CreateAlertRequest{
		Category:    "litter",
		Coordinates: []interface{}{19.26, 42.44},
	}
	expectAlertInsert(mock, 0)

	alert, err := svc.CreateAlert(context.Background(), req, nil, "citizen-1")
	require.NoError(t, err)
	assert.NotNil(t, alert.Proofs)
	assert.Empty(t, alert.Proofs)
	assert.Equal(t, models.StatusPending, alert.Status)
	assert.Equal(t, "citizen-1", alert.CitizenID)
}

func TestCreateAlertTimeoutCoversPersistence(t *testing.T) {
	// An already-expired budget must fail the creation even when there are
	// no files to process: the alert row write sits inside the deadline too.
	cfg := creationConfig()
	cfg.ProcessTimeoutBase = -time.Second
	svc, _ := newTestService(t, cfg)

	req := &models.CreateAlertRequest{
		Category:    "litter",
		Coordinates: []interface{}{19.26, 42.44},
	}

	_, err := svc.CreateAlert(context.Background(), req, nil, "citizen-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded),
		"expected deadline error, got %v", err)
}

func TestProcessUploadsTimesOut(t *testing.T) {
	// Zero workers means no semaphore slot ever frees up, so the expired
	// deadline is the only way out of the wait.
	cfg := creationConfig()
	cfg.ProcessWorkers = 0
	svc, _ := newTestService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := svc.ProcessUploads(ctx, []proofs.RawFile{
		{OriginalName: "a.jpg", MimeType: "image/jpeg", Data: smallJPEG(t)},
	})
	require.Error(t, err)
	var processing *apperrors.ProcessingError
	assert.True(t, errors.As(err, &processing), "expected ProcessingError, got %v", err)
}
