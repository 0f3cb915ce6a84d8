package dedup

import (
	"fmt"
	"testing"

	"github.com/rewired-gh/signalwatch/internal/models"
)

func sig(symbol, timeframe, createdAt string, score float64) models.Signal {
	return models.Signal{
		Symbol:    models.String(symbol),
		Timeframe: models.String(timeframe),
		CreatedAt: models.String(createdAt),
		Score:     models.Float(score),
	}
}

func TestFingerprintOf_Deterministic(t *testing.T) {
	a := sig("BTC", "1h", "t1", 80)
	b := sig("BTC", "1h", "t1", 80)
	b.Reasons = models.String("different reasons do not matter")

	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("identical tuples must produce identical fingerprints")
	}
	if len(FingerprintOf(a)) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(FingerprintOf(a)))
	}
}

func TestFingerprintOf_DistinguishesFields(t *testing.T) {
	base := sig("BTC", "1h", "t1", 80)
	variants := []models.Signal{
		sig("ETH", "1h", "t1", 80),
		sig("BTC", "4h", "t1", 80),
		sig("BTC", "1h", "t2", 80),
		sig("BTC", "1h", "t1", 81),
		{Symbol: models.String("null"), Timeframe: models.String("1h"), CreatedAt: models.String("t1"), Score: models.Float(80)},
		{Timeframe: models.String("1h"), CreatedAt: models.String("t1"), Score: models.Float(80)},
		// separator injection must not collide
		{Symbol: models.String("BTC|1h"), CreatedAt: models.String("t1"), Score: models.Float(80)},
	}
	seen := map[Fingerprint]int{FingerprintOf(base): -1}
	for i, v := range variants {
		fp := FingerprintOf(v)
		if j, dup := seen[fp]; dup {
			t.Errorf("variant %d collides with %d", i, j)
		}
		seen[fp] = i
	}
}

func TestFingerprintOf_AbsentScoreEqualsZero(t *testing.T) {
	absent := models.Signal{Symbol: models.String("BTC")}
	zero := models.Signal{Symbol: models.String("BTC"), Score: models.Float(0)}
	if FingerprintOf(absent) != FingerprintOf(zero) {
		t.Error("absent score compares as 0 and should fingerprint as 0")
	}
}

func TestNotificationID(t *testing.T) {
	fp := FingerprintOf(sig("BTC", "1h", "t1", 80))
	id := fp.NotificationID()
	if id < 0 {
		t.Errorf("notification id must be non-negative, got %d", id)
	}
	if id != fp.NotificationID() {
		t.Error("notification id must be stable")
	}
	if Fingerprint("not-hex").NotificationID() < 0 {
		t.Error("fallback notification id must be non-negative")
	}
}

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(Fingerprint(fmt.Sprintf("fp-%d", i)))
	}
	if h.Len() != 3 {
		t.Fatalf("got %d entries, want 3", h.Len())
	}
	want := []Fingerprint{"fp-2", "fp-3", "fp-4"}
	for i, fp := range h.Entries() {
		if fp != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, fp, want[i])
		}
	}
	if h.Contains("fp-0") || h.Contains("fp-1") {
		t.Error("evicted fingerprints still reported as contained")
	}
}

func TestHistory_NeverExceedsCapacity(t *testing.T) {
	h := NewHistory(DefaultCapacity)
	for i := 0; i < 3*DefaultCapacity; i++ {
		h.Add(Fingerprint(fmt.Sprintf("fp-%d", i)))
		if h.Len() > DefaultCapacity {
			t.Fatalf("history grew to %d after %d adds", h.Len(), i+1)
		}
	}
	if !h.Contains(Fingerprint(fmt.Sprintf("fp-%d", 3*DefaultCapacity-1))) {
		t.Error("newest entry missing")
	}
}

func TestHistory_DuplicateAddKeepsOrder(t *testing.T) {
	h := NewHistory(2, "a", "b")
	if h.Add("a") {
		t.Error("Add returned true for a duplicate")
	}
	h.Add("c")
	if h.Contains("a") {
		t.Error("re-adding must not refresh an entry's age")
	}
}

func TestNewHistory_KeepsNewest(t *testing.T) {
	h := NewHistory(2, "a", "b", "c")
	if h.Contains("a") || !h.Contains("b") || !h.Contains("c") {
		t.Errorf("unexpected entries: %v", h.Entries())
	}
}

func TestFilterNew_StrongOnlyThreshold(t *testing.T) {
	high := sig("BTC", "1h", "t1", 85)
	low := sig("ETH", "1h", "t1", 60)

	res := FilterNew([]models.Signal{high, low}, NewHistory(DefaultCapacity), true, 70)

	if len(res.NewSignals) != 1 || *res.NewSignals[0].Symbol != "BTC" {
		t.Fatalf("expected only BTC, got %+v", res.NewSignals)
	}
	if !res.History.Contains(FingerprintOf(high)) {
		t.Error("high score signal should be recorded")
	}
	if res.History.Contains(FingerprintOf(low)) {
		t.Error("low score signal must never be recorded")
	}

	// Relaxing the threshold rediscovers the low-score signal.
	again := FilterNew([]models.Signal{high, low}, res.History, true, 50)
	if len(again.NewSignals) != 1 || *again.NewSignals[0].Symbol != "ETH" {
		t.Errorf("expected ETH to be rediscovered, got %+v", again.NewSignals)
	}
}

func TestFilterNew_NeverReturnsBelowMinScore(t *testing.T) {
	var batch []models.Signal
	for i := 0; i <= 100; i += 5 {
		batch = append(batch, sig("S", "1h", fmt.Sprint(i), float64(i)))
	}
	batch = append(batch, models.Signal{Symbol: models.String("NOSCORE")})

	for _, minScore := range []float64{0, 33, 70, 100} {
		res := FilterNew(batch, nil, true, minScore)
		for _, s := range res.NewSignals {
			if s.ComparisonScore() < minScore {
				t.Errorf("minScore %v: returned score %v", minScore, s.ComparisonScore())
			}
		}
	}
}

func TestFilterNew_StrongOffIgnoresScore(t *testing.T) {
	batch := []models.Signal{sig("A", "1h", "t", 10), {Symbol: models.String("B")}}
	res := FilterNew(batch, nil, false, 70)
	if len(res.NewSignals) != 2 {
		t.Errorf("expected both signals, got %d", len(res.NewSignals))
	}
}

func TestFilterNew_Idempotent(t *testing.T) {
	batch := []models.Signal{
		sig("BTC", "1h", "t1", 80),
		sig("ETH", "4h", "t1", 90),
		sig("SOL", "1d", "t2", 75),
	}
	first := FilterNew(batch, NewHistory(DefaultCapacity), true, 70)
	if len(first.NewSignals) != 3 {
		t.Fatalf("first pass: got %d new, want 3", len(first.NewSignals))
	}
	second := FilterNew(batch, first.History, true, 70)
	if len(second.NewSignals) != 0 {
		t.Errorf("second pass: got %d new, want 0", len(second.NewSignals))
	}
	if second.Changed() {
		t.Error("second pass should report no change")
	}
	if second.History.Len() != first.History.Len() {
		t.Error("history changed on second pass")
	}
}

func TestFilterNew_DuplicateWithinBatch(t *testing.T) {
	s := sig("BTC", "1h", "t1", 80)
	res := FilterNew([]models.Signal{s, s}, NewHistory(DefaultCapacity), true, 70)
	if len(res.NewSignals) != 1 {
		t.Errorf("got %d entries, want exactly 1", len(res.NewSignals))
	}
	if res.History.Len() != 1 {
		t.Errorf("history length: got %d, want 1", res.History.Len())
	}
}

func TestFilterNew_PreservesOrder(t *testing.T) {
	batch := []models.Signal{
		sig("C", "1h", "t", 90),
		sig("A", "1h", "t", 95),
		sig("B", "1h", "t", 99),
	}
	res := FilterNew(batch, nil, false, 0)
	for i, want := range []string{"C", "A", "B"} {
		if *res.NewSignals[i].Symbol != want {
			t.Errorf("position %d: got %s, want %s", i, *res.NewSignals[i].Symbol, want)
		}
	}
	for i, fp := range res.Fingerprints {
		if fp != FingerprintOf(res.NewSignals[i]) {
			t.Errorf("fingerprint %d does not match its signal", i)
		}
	}
}

func TestFilterNew_EmptyAndAllSeen(t *testing.T) {
	s := sig("BTC", "1h", "t1", 80)
	h := NewHistory(DefaultCapacity, FingerprintOf(s))

	empty := FilterNew(nil, h, true, 70)
	if len(empty.NewSignals) != 0 || empty.History.Len() != 1 {
		t.Errorf("empty batch changed result: %+v", empty)
	}

	seen := FilterNew([]models.Signal{s}, h, true, 70)
	if seen.Changed() {
		t.Error("already seen signal reported as new")
	}
}

func TestFilterNew_DoesNotMutateInput(t *testing.T) {
	h := NewHistory(DefaultCapacity)
	FilterNew([]models.Signal{sig("BTC", "1h", "t1", 80)}, h, true, 70)
	if h.Len() != 0 {
		t.Errorf("input history mutated: %d entries", h.Len())
	}
}
