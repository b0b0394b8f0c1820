package eventlog

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Sink persists records as they are appended.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// RunID derives a stable run identifier from the map version and the seed,
// so that reruns of one scenario share an id.
func RunID(mapVersion string, seed int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("traffic-sim:%s:%d", mapVersion, seed))).String()
}

// Log is the append-only event log of one run. Records are kept in memory
// and forwarded to every attached sink.
// Thread-safety: NOT thread-safe.
type Log struct {
	runID   string
	records []Record
	sinks   []Sink
	next    uint64
}

// NewLog creates an empty log.
func NewLog(runID string) *Log {
	return &Log{runID: runID, records: make([]Record, 0)}
}

// RunID returns the id of the run.
func (l *Log) RunID() string { return l.runID }

// Attach adds a sink. Records appended before are not replayed.
func (l *Log) Attach(s Sink) { l.sinks = append(l.sinks, s) }

// Append numbers a record and stores it. A failing sink does not lose the
// in-memory record; the first sink error is returned.
func (l *Log) Append(ctx context.Context, rec Record) (Record, error) {
	rec.Seq = l.next
	l.next++
	l.records = append(l.records, rec)
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("event log sink: %w", err)
		}
	}
	return rec, firstErr
}

// Len is the number of records.
func (l *Log) Len() int { return len(l.records) }

// Records returns a copy of all records in append order.
func (l *Log) Records() []Record { return slices.Clone(l.records) }

// Since returns the records with Seq >= seq.
func (l *Log) Since(seq uint64) []Record {
	i, _ := slices.BinarySearchFunc(l.records, seq, func(r Record, s uint64) int {
		switch {
		case r.Seq < s:
			return -1
		case r.Seq > s:
			return 1
		}
		return 0
	})
	return slices.Clone(l.records[i:])
}

// NextSeq is the sequence number the next record will get.
func (l *Log) NextSeq() uint64 { return l.next }

// Resume continues numbering at seq, for a log that picks up a restored run.
func (l *Log) Resume(seq uint64) { l.next = seq }

// Close closes every sink.
func (l *Log) Close() error {
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.sinks = nil
	return firstErr
}
