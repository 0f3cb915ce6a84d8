package models

import "testing"

func TestSignalComparisonScore(t *testing.T) {
	tests := []struct {
		name   string
		signal Signal
		want   float64
	}{
		{name: "absent score", signal: Signal{Symbol: String("BTC")}, want: 0},
		{name: "present score", signal: Signal{Score: Float(85.5)}, want: 85.5},
		{name: "explicit zero", signal: Signal{Score: Float(0)}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.signal.ComparisonScore(); got != tt.want {
				t.Errorf("ComparisonScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignalScoreText(t *testing.T) {
	absent := Signal{}
	if absent.HasScore() {
		t.Error("HasScore() = true for absent score")
	}
	if got := absent.ScoreText(); got != "n/a" {
		t.Errorf("absent ScoreText() = %q, want %q", got, "n/a")
	}

	zero := Signal{Score: Float(0)}
	if !zero.HasScore() {
		t.Error("HasScore() = false for explicit zero")
	}
	if got := zero.ScoreText(); got != "0.0" {
		t.Errorf("zero ScoreText() = %q, want %q", got, "0.0")
	}
}

func TestSignalLabel(t *testing.T) {
	tests := []struct {
		signal Signal
		want   string
	}{
		{Signal{Symbol: String("ETH"), Timeframe: String("4h")}, "ETH 4h"},
		{Signal{Symbol: String("ETH")}, "ETH"},
		{Signal{Timeframe: String("1d")}, "? 1d"},
		{Signal{}, "?"},
	}

	for _, tt := range tests {
		if got := tt.signal.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences("http://localhost:8000")
	if p.ServerURL != "http://localhost:8000" {
		t.Errorf("server: got %q", p.ServerURL)
	}
	if !p.DarkMode || !p.NotificationsEnabled || !p.StrongSignalsOnly {
		t.Errorf("boolean defaults should all be true: %+v", p)
	}
	if p.MinScore != 70 {
		t.Errorf("min score: got %v, want 70", p.MinScore)
	}
}
