package domain

import "strings"

// Salon is one salon attribute row.
type Salon struct {
	ID            string
	BusinessName  string
	Address       string
	PriceLevel    string
	ReviewTotal   *int
	AverageRating *float64
	Features      *string
}

// SalonMatch joins a salon-portfolio vector hit to its salon record.
// ImageID is the portfolio image that produced the match; Similarity is its
// vector score against the query image.
type SalonMatch struct {
	SalonID       string
	BusinessName  string
	Address       string
	PriceLevel    string
	ReviewTotal   *int
	AverageRating *float64
	Features      *string
	ImageID       string
	Similarity    float64
}

// NormalizeSalonID strips the dash delimiter from a salon ID. Upstream tables
// disagree on formatting ("ab-12" vs "ab12"); both sides of the join are
// normalized through this before comparison. Idempotent.
func NormalizeSalonID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}
