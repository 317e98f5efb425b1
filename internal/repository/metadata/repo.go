// Package metadata implements the relational metadata store on PostgreSQL:
// the gallery image table plus the read-only salon mapping and salon
// attribute tables used by recommendations.
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

const imagesTable = "pretty_images_metadata"

// Repo implements the metadata store over a long-lived *sql.DB pool.
type Repo struct {
	db *sql.DB
}

// New creates a metadata repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

// Migrate creates the gallery image table when absent. The salon tables are
// owned by the scraping pipeline and only read here.
func (r *Repo) Migrate(ctx context.Context) error {
	stmt := `
		CREATE TABLE IF NOT EXISTS ` + imagesTable + ` (
			uuid UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			upload_time TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			metadata JSONB
		)
	`
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "create images table"))
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.NewUpstreamError(domain.StoreMetadata, err)
	}
	return nil
}

// Insert writes one image metadata row.
func (r *Repo) Insert(ctx context.Context, rec *domain.ImageRecord) error {
	var doc []byte
	if rec.Metadata != nil {
		var err error
		doc, err = json.Marshal(rec.Metadata)
		if err != nil {
			return errors.Wrap(err, "marshal metadata")
		}
	}

	stmt := `
		INSERT INTO ` + imagesTable + ` (uuid, filename, metadata)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, stmt, rec.ID, rec.Filename, nullableJSON(doc)); err != nil {
		return domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "insert image metadata"))
	}
	return nil
}

// Get returns the metadata record for id, or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*domain.ImageRecord, error) {
	stmt := `
		SELECT uuid, filename, upload_time, metadata
		FROM ` + imagesTable + `
		WHERE uuid = $1
	`
	var rec domain.ImageRecord
	var doc []byte
	err := r.db.QueryRowContext(ctx, stmt, id).Scan(&rec.ID, &rec.Filename, &rec.UploadedAt, &doc)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "get image metadata"))
	}

	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &rec.Metadata); err != nil {
			return nil, errors.Wrapf(err, "unmarshal metadata for %s", id)
		}
	}
	return &rec, nil
}

// Exists reports whether a metadata row exists for id.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+imagesTable+` WHERE uuid = $1 LIMIT 1`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "check image exists"))
	}
	return true, nil
}

// Delete removes the metadata row for id. Deleting an absent row is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM `+imagesTable+` WHERE uuid = $1`, id,
	); err != nil {
		return domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "delete image metadata"))
	}
	return nil
}

// SalonIDForImage resolves the owning salon of a portfolio image via the
// salon_images mapping table. domain.ErrNotFound when the image is not yet
// linked to any salon.
func (r *Repo) SalonIDForImage(ctx context.Context, imageID string) (string, error) {
	var salonID string
	err := r.db.QueryRowContext(ctx,
		`SELECT salon_id FROM salon_images WHERE image_id = $1`, imageID,
	).Scan(&salonID)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "lookup salon mapping"))
	}
	return salonID, nil
}

// SalonByID returns the salon record whose delimiter-stripped ID equals the
// delimiter-stripped input. The mapping and salon tables disagree on dash
// formatting, so both sides are normalized before comparison.
func (r *Repo) SalonByID(ctx context.Context, salonID string) (*domain.Salon, error) {
	stmt := `
		SELECT salon_id, business_name, address, overall_price_level,
			review_total, average_rating, amenities
		FROM salons
		WHERE REPLACE(salon_id, '-', '') = $1
	`
	var s domain.Salon
	var reviewTotal sql.NullInt64
	var avgRating sql.NullFloat64
	var features sql.NullString

	err := r.db.QueryRowContext(ctx, stmt, domain.NormalizeSalonID(salonID)).Scan(
		&s.ID, &s.BusinessName, &s.Address, &s.PriceLevel,
		&reviewTotal, &avgRating, &features,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewUpstreamError(domain.StoreMetadata, errors.Wrap(err, "lookup salon"))
	}

	if reviewTotal.Valid {
		n := int(reviewTotal.Int64)
		s.ReviewTotal = &n
	}
	if avgRating.Valid {
		f := avgRating.Float64
		s.AverageRating = &f
	}
	if features.Valid {
		s.Features = &features.String
	}
	return &s, nil
}

// nullableJSON maps empty JSON to SQL NULL so the JSONB column stays null for
// records ingested without a metadata document.
func nullableJSON(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}
	return doc
}
