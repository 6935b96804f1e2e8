package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"alerts-service/apperrors"
	"alerts-service/models"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

const earthRadiusMeters = 6371010.0

// AlertStore handles all alert persistence operations.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore creates a store over an open connection pool.
func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

const alertColumns = `id, service_id, category, title, description, priority,
		longitude, latitude, address, is_anonymous, citizen_id, status,
		created_at, updated_at`

// CreateAlert persists an alert together with its proofs in one transaction.
// Nothing is written when any part fails.
func (s *AlertStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lon := alert.Longitude()
	lat := alert.Latitude()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (id, service_id, category, title, description, priority,
			longitude, latitude, location, address, is_anonymous, citizen_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ST_GeomFromText(?, 4326, 'axis-order=long-lat'), ?, ?, ?, ?)`,
		alert.ID, alert.ServiceID, alert.Category, alert.Title, alert.Description,
		alert.Priority, lon, lat, pointWKT(lon, lat), alert.Address,
		alert.IsAnonymous, nullable(alert.CitizenID), alert.Status)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	for _, proof := range alert.Proofs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO alert_proofs (alert_id, type, url, thumbnail, size)
			VALUES (?, ?, ?, ?, ?)`,
			alert.ID, proof.Type, proof.URL, proof.Thumbnail, proof.Size)
		if err != nil {
			return fmt.Errorf("failed to insert proof: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert: %w", err)
	}
	return nil
}

// GetAlertsByCitizen returns every alert owned by the citizen, newest first.
func (s *AlertStore) GetAlertsByCitizen(ctx context.Context, citizenID string) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE citizen_id = ? ORDER BY created_at DESC`, alertColumns)
	rows, err := s.db.QueryContext(ctx, query, citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts by citizen: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetAlertByID returns one alert scoped to its owner. A missing alert and an
// alert owned by someone else produce the same NotFoundError.
func (s *AlertStore) GetAlertByID(ctx context.Context, id, citizenID string) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = ? AND citizen_id = ?`, alertColumns)
	alert, err := s.getOne(ctx, query, id, citizenID)
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// GetAlert returns one alert without an ownership check. Used by the comment
// and status paths, which are not owner-scoped.
func (s *AlertStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = ?`, alertColumns)
	return s.getOne(ctx, query, id)
}

func (s *AlertStore) getOne(ctx context.Context, query string, args ...interface{}) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("alert not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	single := []models.Alert{*alert}
	if err := s.attachChildren(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// GetAlertsNearby returns alerts within maxDistanceMeters of the given
// point, nearest first. An s2 cap around the center bounds the scan by
// latitude and longitude before the exact spherical distance check.
func (s *AlertStore) GetAlertsNearby(ctx context.Context, lon, lat, maxDistanceMeters float64) ([]models.Alert, error) {
	center := s2.LatLngFromDegrees(lat, lon)
	searchCap := s2.CapFromCenterAngle(s2.PointFromLatLng(center), s1.Angle(maxDistanceMeters/earthRadiusMeters))
	rect := searchCap.RectBound()
	// The rect bounds are radians; the columns store degrees.
	lo, hi := rect.Lo(), rect.Hi()

	query := fmt.Sprintf(`
		SELECT %s,
			ST_Distance_Sphere(location, ST_GeomFromText(?, 4326, 'axis-order=long-lat')) AS distance
		FROM alerts
		WHERE latitude BETWEEN ? AND ?`, alertColumns)
	args := []interface{}{
		pointWKT(lon, lat),
		lo.Lat.Degrees(), hi.Lat.Degrees(),
	}
	// A cap crossing the antimeridian has an inverted longitude interval;
	// fall back to the distance check alone for longitude.
	if !rect.Lng.IsInverted() && !rect.Lng.IsFull() {
		query += ` AND longitude BETWEEN ? AND ?`
		args = append(args, lo.Lng.Degrees(), hi.Lng.Degrees())
	}
	query += `
		HAVING distance <= ?
		ORDER BY distance ASC`
	args = append(args, maxDistanceMeters)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		// Distance is selected only to order and bound the result set.
		var distance float64
		alert, err := scanAlertInto(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nearby alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nearby alerts: %w", err)
	}
	if err := s.attachChildren(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// AddComment appends a comment and bumps the alert's updated_at.
func (s *AlertStore) AddComment(ctx context.Context, alertID, citizenID, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alert_comments (alert_id, citizen_id, text) VALUES (?, ?, ?)`,
		alertID, citizenID, text)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE alerts SET updated_at = NOW() WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("failed to touch alert: %w", err)
	}
	return tx.Commit()
}

// UpdateStatus sets a new status on an alert.
func (s *AlertStore) UpdateStatus(ctx context.Context, alertID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, updated_at = NOW() WHERE id = ?`, status, alertID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// attachChildren loads proofs and comments for the given alerts in
// submission order.
func (s *AlertStore) attachChildren(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	index := make(map[string]*models.Alert, len(alerts))
	placeholders := make([]string, 0, len(alerts))
	ids := make([]interface{}, 0, len(alerts))
	for i := range alerts {
		alerts[i].Proofs = []models.Proof{}
		alerts[i].Comments = []models.Comment{}
		index[alerts[i].ID] = &alerts[i]
		placeholders = append(placeholders, "?")
		ids = append(ids, alerts[i].ID)
	}
	in := strings.Join(placeholders, ", ")

	proofRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT alert_id, type, url, thumbnail, size
		FROM alert_proofs WHERE alert_id IN (%s) ORDER BY seq ASC`, in), ids...)
	if err != nil {
		return fmt.Errorf("failed to query proofs: %w", err)
	}
	defer proofRows.Close()
	for proofRows.Next() {
		var alertID string
		var proof models.Proof
		if err := proofRows.Scan(&alertID, &proof.Type, &proof.URL, &proof.Thumbnail, &proof.Size); err != nil {
			return fmt.Errorf("failed to scan proof: %w", err)
		}
		if alert, ok := index[alertID]; ok {
			alert.Proofs = append(alert.Proofs, proof)
		}
	}
	if err := proofRows.Err(); err != nil {
		return fmt.Errorf("error iterating proofs: %w", err)
	}

	commentRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT alert_id, citizen_id, text, created_at
		FROM alert_comments WHERE alert_id IN (%s) ORDER BY seq ASC`, in), ids...)
	if err != nil {
		return fmt.Errorf("failed to query comments: %w", err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var alertID string
		var comment models.Comment
		if err := commentRows.Scan(&alertID, &comment.CitizenID, &comment.Text, &comment.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		if alert, ok := index[alertID]; ok {
			alert.Comments = append(alert.Comments, comment)
		}
	}
	return commentRows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertInto(scanner rowScanner, extra ...interface{}) (*models.Alert, error) {
	var alert models.Alert
	var lon, lat float64
	var citizenID sql.NullString
	dest := []interface{}{
		&alert.ID, &alert.ServiceID, &alert.Category, &alert.Title,
		&alert.Description, &alert.Priority, &lon, &lat, &alert.Address,
		&alert.IsAnonymous, &citizenID, &alert.Status,
		&alert.CreatedAt, &alert.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	alert.CitizenID = citizenID.String
	alert.Location = geojson.NewPointGeometry([]float64{lon, lat})
	return &alert, nil
}

func scanAlert(scanner rowScanner) (*models.Alert, error) {
	return scanAlertInto(scanner)
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

func pointWKT(lon, lat float64) string {
	return fmt.Sprintf("POINT(%g %g)", lon, lat)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
