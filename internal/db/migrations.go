package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id         VARCHAR(36) PRIMARY KEY,
		email           VARCHAR(255) NOT NULL,
		username        VARCHAR(100) NOT NULL,
		password_hash   VARCHAR(255) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login      TIMESTAMPTZ,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email ON users(email);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_username ON users(username);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		incident_id       VARCHAR(36) PRIMARY KEY,
		user_id           VARCHAR(36) NOT NULL REFERENCES users(user_id),
		type              TEXT NOT NULL CHECK (type IN ('crash', 'police', 'road_rage', 'hazard', 'other')),
		latitude          DOUBLE PRECISION NOT NULL,
		longitude         DOUBLE PRECISION NOT NULL,
		timestamp         TIMESTAMPTZ NOT NULL,
		speed             DOUBLE PRECISION,
		heading           DOUBLE PRECISION,
		description       TEXT,
		video_path        VARCHAR(500) NOT NULL,
		video_size        BIGINT NOT NULL,
		processing_status TEXT NOT NULL DEFAULT 'pending'
			CHECK (processing_status IN ('pending', 'processing', 'completed', 'failed')),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_user_id ON incidents(user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(processing_status);`,
	`CREATE TABLE IF NOT EXISTS detected_vehicles (
		detection_id    VARCHAR(36) PRIMARY KEY,
		incident_id     VARCHAR(36) NOT NULL REFERENCES incidents(incident_id) ON DELETE CASCADE,
		vehicle_type    VARCHAR(50) NOT NULL CHECK (vehicle_type IN ('car', 'motorcycle', 'bus', 'truck')),
		make            VARCHAR(50),
		model           VARCHAR(50),
		color           VARCHAR(50),
		confidence      DOUBLE PRECISION NOT NULL,
		bounding_box    JSONB NOT NULL,
		frame_timestamp DOUBLE PRECISION NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_vehicles_incident_id ON detected_vehicles(incident_id);`,
	`CREATE TABLE IF NOT EXISTS license_plates (
		plate_id        VARCHAR(36) PRIMARY KEY,
		incident_id     VARCHAR(36) NOT NULL REFERENCES incidents(incident_id) ON DELETE CASCADE,
		detection_id    VARCHAR(36) REFERENCES detected_vehicles(detection_id) ON DELETE CASCADE,
		plate_number    VARCHAR(20) NOT NULL,
		confidence      DOUBLE PRECISION NOT NULL,
		state_region    VARCHAR(50),
		country         VARCHAR(50),
		frame_timestamp DOUBLE PRECISION NOT NULL,
		bounding_box    JSONB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_incident_id ON license_plates(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_plate_number ON license_plates(plate_number);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
