// Package models defines the core domain entities: signals and user preferences.
package models

import "fmt"

// Signal is a single scored trading opportunity returned by the signal service.
// Every field is optional on the wire; absent values stay nil.
type Signal struct {
	Symbol    *string  `json:"symbol,omitempty"`
	Timeframe *string  `json:"timeframe,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Reasons   *string  `json:"reasons,omitempty"`
	CreatedAt *string  `json:"created_at,omitempty"`
}

// ComparisonScore returns the score used for threshold checks.
// An absent score compares as 0.
func (s Signal) ComparisonScore() float64 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

// HasScore reports whether the service sent a score for this signal.
func (s Signal) HasScore() bool {
	return s.Score != nil
}

// Label returns a short human readable name, e.g. "BTC 1h".
func (s Signal) Label() string {
	symbol := "?"
	if s.Symbol != nil && *s.Symbol != "" {
		symbol = *s.Symbol
	}
	if s.Timeframe == nil || *s.Timeframe == "" {
		return symbol
	}
	return symbol + " " + *s.Timeframe
}

// ScoreText renders the score for display, keeping absent distinct from zero.
func (s Signal) ScoreText() string {
	if s.Score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *s.Score)
}

// StringValue dereferences an optional string, returning "" when absent.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// String returns a pointer to v.
func String(v string) *string { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
