// Package notifytest provides an in-memory notification sink for tests.
package notifytest

import (
	"context"
	"sync"
)

// Record is a notification captured by Recorder.
type Record struct {
	Title string
	Body  string
	ID    int
}

// Recorder keeps notifications in memory, collapsing repeated ids.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	Err     error // returned from every Notify call when set
}

func (r *Recorder) Notify(_ context.Context, title, body string, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i] = Record{Title: title, Body: body, ID: id}
			return nil
		}
	}
	r.records = append(r.records, Record{Title: title, Body: body, ID: id})
	return nil
}

// Records returns the captured notifications in delivery order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
