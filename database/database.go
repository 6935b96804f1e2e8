package database

import (
	"database/sql"
	"fmt"
	"time"

	"alerts-service/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// NewConnection opens the MySQL connection pool for the alert store.
func NewConnection(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return db, nil
}

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing alerts-service database schema...")

	alertsTableSQL := `
	CREATE TABLE IF NOT EXISTS alerts(
		id VARCHAR(36) NOT NULL,
		service_id VARCHAR(64) NOT NULL DEFAULT '',
		category VARCHAR(128) NOT NULL DEFAULT '',
		title VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT,
		priority VARCHAR(32) NOT NULL DEFAULT '',
		longitude DOUBLE NOT NULL,
		latitude DOUBLE NOT NULL,
		location POINT NOT NULL SRID 4326,
		address VARCHAR(512) NOT NULL DEFAULT '',
		is_anonymous BOOL NOT NULL DEFAULT false,
		citizen_id VARCHAR(64),
		status VARCHAR(64) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX citizen_id_index (citizen_id),
		INDEX status_index (status),
		SPATIAL INDEX(location)
	)`

	if _, err := db.Exec(alertsTableSQL); err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}
	log.Info("Alerts table created/verified")

	proofsTableSQL := `
	CREATE TABLE IF NOT EXISTS alert_proofs(
		seq INT NOT NULL AUTO_INCREMENT,
		alert_id VARCHAR(36) NOT NULL,
		type ENUM('photo', 'video', 'audio') NOT NULL,
		url VARCHAR(512) NOT NULL,
		thumbnail VARCHAR(512),
		size BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (seq),
		INDEX alert_id_index (alert_id)
	)`

	if _, err := db.Exec(proofsTableSQL); err != nil {
		return fmt.Errorf("failed to create alert_proofs table: %w", err)
	}
	log.Info("Alert_proofs table created/verified")

	commentsTableSQL := `
	CREATE TABLE IF NOT EXISTS alert_comments(
		seq INT NOT NULL AUTO_INCREMENT,
		alert_id VARCHAR(36) NOT NULL,
		citizen_id VARCHAR(64) NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (seq),
		INDEX alert_id_index (alert_id)
	)`

	if _, err := db.Exec(commentsTableSQL); err != nil {
		return fmt.Errorf("failed to create alert_comments table: %w", err)
	}
	log.Info("Alert_comments table created/verified")

	return nil
}
