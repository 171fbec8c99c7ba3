package models

import (
	"errors"
	"time"
)

// Market is a prediction market (condition) and the outcome tokens that trade on it.
// Zero times mean the upstream metadata did not carry that field.
type Market struct {
	ConditionID   string    `json:"condition_id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
	StartDate     time.Time `json:"start_date,omitempty"`
	EndDate       time.Time `json:"end_date,omitempty"`
	ClosedTime    time.Time `json:"closed_time,omitempty"`
	Closed        bool      `json:"closed"`
	Volume        float64   `json:"volume"`
	TokenIDs      []string  `json:"clob_token_ids"`
	Category      string    `json:"category"`
	Resolution    string    `json:"resolution"`
}

// Window returns the effective lifecycle of the market: the recorded start
// (or EndDate minus defaultLifetime when absent) and the actual resolution
// time (or EndDate when the market has not closed). ok is false when the
// market has no end date.
func (m *Market) Window(defaultLifetime time.Duration) (start, resolution time.Time, ok bool) {
	if m.EndDate.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	start = m.StartDate
	if start.IsZero() {
		start = m.EndDate.Add(-defaultLifetime)
	}
	resolution = m.ClosedTime
	if resolution.IsZero() {
		resolution = m.EndDate
	}
	return start, resolution, true
}

// Validate checks market field constraints.
func (m *Market) Validate() error {
	if m.ConditionID == "" {
		return errors.New("market condition ID must not be empty")
	}
	if m.Volume < 0 {
		return errors.New("market volume must not be negative")
	}
	for _, p := range m.OutcomePrices {
		if p < 0.0 || p > 1.0 {
			return errors.New("outcome prices must be between 0.0 and 1.0")
		}
	}
	return nil
}

// Inverted reports whether the recorded start falls after the end date.
// Such markets are still stored; EntryTiming skips their window.
func (m *Market) Inverted() bool {
	return !m.StartDate.IsZero() && !m.EndDate.IsZero() && m.StartDate.After(m.EndDate)
}
