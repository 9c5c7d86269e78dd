// Package promo holds the records read from the promotions database.
package promo

import "time"

// Segment is one execution segment of a running campaign.
type Segment struct {
	ID   int64
	Name string
}

// StageRecord is a recorded stage window. Start and End are nil when the
// database holds no timestamp for them.
type StageRecord struct {
	Name  string
	Start *time.Time
	End   *time.Time
}

// Complete reports whether both ends of the window are recorded.
func (r StageRecord) Complete() bool {
	return r.Start != nil && r.End != nil
}

// ConfigRow is one flat configuration value. Value is nil for a NULL column
// and an int64 otherwise.
type ConfigRow struct {
	Code  string
	Value any
}

// TournamentDate is one upcoming tournament row from the tables database.
type TournamentDate struct {
	ID           int64
	TournamentID int64
	Promotion    string
	Start        string
	End          string
}
