package dedup

import "github.com/rewired-gh/signalwatch/internal/models"

// Result is the outcome of FilterNew.
type Result struct {
	// NewSignals are the candidates not seen before, in input order.
	NewSignals []models.Signal
	// Fingerprints holds the fingerprint of each entry in NewSignals.
	Fingerprints []Fingerprint
	// History is the updated history. It is a copy; the input is untouched.
	History *History
}

// Changed reports whether any fingerprint was added to the history.
func (r Result) Changed() bool { return len(r.NewSignals) > 0 }

// FilterNew returns the candidates that are new relative to history.
//
// With strongOnly set, candidates scoring below minScore are dropped without
// being recorded, so they are evaluated again on later cycles. A fingerprint
// repeated within one batch is reported once.
func FilterNew(candidates []models.Signal, history *History, strongOnly bool, minScore float64) Result {
	if history == nil {
		history = NewHistory(DefaultCapacity)
	}
	res := Result{History: history.Clone()}

	for _, s := range candidates {
		if strongOnly && s.ComparisonScore() < minScore {
			continue
		}
		fp := FingerprintOf(s)
		if !res.History.Add(fp) {
			continue
		}
		res.NewSignals = append(res.NewSignals, s)
		res.Fingerprints = append(res.Fingerprints, fp)
	}

	return res
}
