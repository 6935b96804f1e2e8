package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"alerts-service/apperrors"
	"alerts-service/config"
	"alerts-service/database"
	"alerts-service/metrics"
	"alerts-service/models"
	"alerts-service/proofs"
	"alerts-service/proofstore"
	"alerts-service/rabbitmq"
	ws "alerts-service/websocket"

	"github.com/apex/log"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
)

// Service orchestrates alert ingestion, queries and status transitions over
// the store and the proof pipeline. The publisher may be nil when no broker
// is configured; events are then skipped.
type Service struct {
	cfg       *config.Config
	store     *database.AlertStore
	files     *proofstore.Store
	pipeline  *proofs.Pipeline
	publisher *rabbitmq.Publisher
	hub       *ws.Hub
}

func New(cfg *config.Config, store *database.AlertStore, files *proofstore.Store,
	pipeline *proofs.Pipeline, publisher *rabbitmq.Publisher, hub *ws.Hub) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		files:     files,
		pipeline:  pipeline,
		publisher: publisher,
		hub:       hub,
	}
}

// CreateAlert validates and assembles an alert creation request. When raw
// files are attached, every one of them settles (processed or degraded)
// before the alert row is written; any inline proofs field is then ignored.
// Nothing is persisted when any step fails.
func (s *Service) CreateAlert(ctx context.Context, req *models.CreateAlertRequest,
	files []proofs.RawFile, citizenID string) (*models.Alert, error) {
	lon, lat, err := ParseCoordinates(req.Coordinates)
	if err != nil {
		return nil, err
	}
	anonymous, err := NormalizeAnonymous(req.IsAnonymous)
	if err != nil {
		return nil, err
	}

	// The whole creation, persistence included, runs under one bounded
	// timeout that grows with the number of attached files.
	ctx, cancel := context.WithTimeout(ctx,
		s.cfg.ProcessTimeoutBase+time.Duration(len(files))*s.cfg.ProcessTimeoutPerFile)
	defer cancel()

	var proofList []models.Proof
	switch {
	case len(files) > 0:
		proofList, err = s.ProcessUploads(ctx, files)
		if err != nil {
			return nil, err
		}
	case len(req.Proofs) > 0:
		// Relaxed mode for clients that pre-upload: metadata is taken
		// verbatim.
		proofList = req.Proofs
	default:
		proofList = []models.Proof{}
	}

	now := time.Now().UTC()
	alert := &models.Alert{
		ID:          uuid.NewString(),
		ServiceID:   req.ServiceID,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Location:    geojson.NewPointGeometry([]float64{lon, lat}),
		Address:     req.Address,
		IsAnonymous: anonymous,
		CitizenID:   citizenID,
		Proofs:      proofList,
		Status:      models.StatusPending,
		Comments:    []models.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateAlert(ctx, alert); err != nil {
		// Files processed for this alert are orphaned otherwise.
		if len(files) > 0 {
			for _, proof := range proofList {
				s.pipeline.Cleanup(proof)
			}
		}
		return nil, err
	}

	metrics.AlertsCreatedTotal.WithLabelValues(alert.Category).Inc()
	log.Infof("Alert %s created by citizen %s with %d proofs", alert.ID, citizenID, len(proofList))

	if s.publisher != nil {
		s.publisher.PublishAlertCreated(alert)
	}
	if s.hub != nil {
		s.hub.BroadcastAlert(RedactForViewer(*alert, ""))
	}
	return alert, nil
}

// ProcessUploads runs every raw file through the pipeline with bounded
// concurrency, preserving submission order. On any failure the files already
// written are removed and the first error is returned.
func (s *Service) ProcessUploads(ctx context.Context, files []proofs.RawFile) ([]models.Proof, error) {
	results := make([]models.Proof, len(files))
	errs := make([]error, len(files))

	sem := make(chan struct{}, s.cfg.ProcessWorkers)
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}

			kind := kindLabel(files[i].MimeType)
			start := time.Now()
			proof, err := s.pipeline.Process(ctx, files[i])
			metrics.ProofProcessingDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.ProofsProcessedTotal.WithLabelValues(kind, "error").Inc()
				errs[i] = err
				return
			}
			metrics.ProofsProcessedTotal.WithLabelValues(kind, "ok").Inc()
			results[i] = proof
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			continue
		}
		for _, proof := range results {
			if proof.URL != "" {
				s.pipeline.Cleanup(proof)
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Processing("proof processing timed out", err)
		}
		return nil, err
	}
	return results, nil
}

// GetAlertsByCitizen returns the viewer's own alerts, newest first.
func (s *Service) GetAlertsByCitizen(ctx context.Context, citizenID string) ([]models.Alert, error) {
	return s.store.GetAlertsByCitizen(ctx, citizenID)
}

// GetAlertByID returns one alert scoped to its owner.
func (s *Service) GetAlertByID(ctx context.Context, id, citizenID string) (*models.Alert, error) {
	return s.store.GetAlertByID(ctx, id, citizenID)
}

// GetAlertsNearby returns alerts within maxDistanceMeters of the point,
// nearest first, with anonymous authorship hidden from other citizens.
func (s *Service) GetAlertsNearby(ctx context.Context, lon, lat, maxDistanceMeters float64, viewerID string) ([]models.Alert, error) {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, apperrors.Validation("coordinates out of range")
	}
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = s.cfg.DefaultNearbyMeters
	}
	alerts, err := s.store.GetAlertsNearby(ctx, lon, lat, maxDistanceMeters)
	if err != nil {
		return nil, err
	}
	for i := range alerts {
		alerts[i] = RedactForViewer(alerts[i], viewerID)
	}
	return alerts, nil
}

// AddComment appends a comment to any alert. Authorship is unrestricted:
// every authenticated citizen may comment.
func (s *Service) AddComment(ctx context.Context, alertID, text, citizenID string) (*models.Alert, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Validation("comment text is required")
	}
	if _, err := s.store.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}
	if err := s.store.AddComment(ctx, alertID, citizenID, text); err != nil {
		return nil, err
	}
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	redacted := RedactForViewer(*alert, citizenID)
	return &redacted, nil
}

// UpdateAlertStatus applies a service-originated status transition. The
// caller is already authenticated by the shared service key.
func (s *Service) UpdateAlertStatus(ctx context.Context, req *models.StatusUpdateRequest) (*models.Alert, error) {
	if req.AlertID == "" || req.Status == "" {
		return nil, apperrors.Validation("alertId and status are required")
	}
	if _, err := s.store.GetAlert(ctx, req.AlertID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, req.AlertID, req.Status); err != nil {
		return nil, err
	}
	if req.Comment != "" {
		author := req.UpdatedBy
		if author == "" {
			author = "service"
		}
		if err := s.store.AddComment(ctx, req.AlertID, author, req.Comment); err != nil {
			return nil, err
		}
	}
	alert, err := s.store.GetAlert(ctx, req.AlertID)
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitionsTotal.WithLabelValues(req.Status).Inc()
	log.Infof("Alert %s status changed to %s by %s", req.AlertID, req.Status, req.UpdatedBy)
	if s.publisher != nil {
		s.publisher.PublishStatusChanged(alert)
	}
	return alert, nil
}

// DeleteUpload removes the asset behind a canonical proof URL together with
// its thumbnail. A missing file yields false, not an error.
func (s *Service) DeleteUpload(url string) (bool, error) {
	if url == "" {
		return false, apperrors.Validation("url is required")
	}
	return s.files.Delete(url)
}

// RedactForViewer hides the author of an anonymous alert from everyone but
// the owner, including the author's own comments.
func RedactForViewer(alert models.Alert, viewerID string) models.Alert {
	if !alert.IsAnonymous || alert.CitizenID == "" || alert.CitizenID == viewerID {
		return alert
	}
	owner := alert.CitizenID
	alert.CitizenID = ""
	comments := make([]models.Comment, len(alert.Comments))
	copy(comments, alert.Comments)
	for i := range comments {
		if comments[i].CitizenID == owner {
			comments[i].CitizenID = ""
		}
	}
	alert.Comments = comments
	return alert
}

func kindLabel(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "other"
	}
}
