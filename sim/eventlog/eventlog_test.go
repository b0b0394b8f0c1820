package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

func sampleRecords() []Record {
	car := agent.CarID{Index: 2, Gen: 1}.Agent()
	return []Record{
		New(0, TripSpawned).WithTrip(0),
		New(0, Departed).WithAgent(car).WithTrip(0).WithPos(mapmodel.Position{Lane: 0, Dist: 4}),
		New(1_500_000, TurnGranted).WithAgent(car).Withf("turn %d", 3),
		New(9_000_000, TripFinished).WithTrip(0),
	}
}

func appendAll(t *testing.T, l *Log, recs []Record) {
	t.Helper()
	for _, r := range recs {
		_, err := l.Append(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestLog_AppendNumbersRecords(t *testing.T) {
	// GIVEN an empty log
	l := NewLog("run")

	// WHEN records are appended
	appendAll(t, l, sampleRecords())

	// THEN they are numbered from zero in append order
	recs := l.Records()
	require.Len(t, recs, 4)
	for i, r := range recs {
		assert.Equal(t, uint64(i), r.Seq)
	}
	assert.Equal(t, uint64(4), l.NextSeq())
	assert.Len(t, l.Since(2), 2)
	assert.Equal(t, uint64(2), l.Since(2)[0].Seq)
	assert.Empty(t, l.Since(10))
}

func TestRecord_JSONOmitsAbsentFields(t *testing.T) {
	// Lane 0 and trip 0 are real ids and must survive encoding.
	r := New(5, Departed).WithTrip(0).WithPos(mapmodel.Position{Lane: 0, Dist: 1.5})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":0,"time":5,"kind":"departed","trip":0,"pos":{"lane":0,"dist":1.5}}`, string(b))

	assert.Contains(t, r.String(), "departed")
	assert.Contains(t, r.String(), "Trip #0")
}

func TestRunID_StableAndSeedDependent(t *testing.T) {
	assert.Equal(t, RunID("v1", 42), RunID("v1", 42))
	assert.NotEqual(t, RunID("v1", 42), RunID("v1", 43))
	assert.NotEqual(t, RunID("v1", 42), RunID("v2", 42))
	assert.Len(t, RunID("v1", 42), 36)
}

func TestJSONLSink_WritesReadableLines(t *testing.T) {
	// GIVEN a log streaming to a JSONL file
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	sink, err := NewJSONLSink(path, 0, 0)
	require.NoError(t, err)
	l := NewLog("run")
	l.Attach(sink)

	// WHEN records are appended and the log closed
	appendAll(t, l, sampleRecords())
	require.NoError(t, l.Close())

	// THEN the file holds the same records
	got, err := ReadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, l.Records(), got)
}

func TestSQLiteSink_PersistQuery(t *testing.T) {
	// GIVEN a log streaming to SQLite
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "events.db"), RunID("v1", 1))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	l := NewLog(RunID("v1", 1))
	l.Attach(sink)
	appendAll(t, l, sampleRecords())
	ctx := context.Background()

	// WHEN querying all records, then one kind, then a time window
	all, err := sink.Query(ctx, Query{})
	require.NoError(t, err)
	grants, err := sink.Query(ctx, Query{Kinds: []Kind{TurnGranted, Parked}})
	require.NoError(t, err)
	window, err := sink.Query(ctx, Query{From: 1, To: 2_000_000})
	require.NoError(t, err)

	// THEN each filter applies
	assert.Equal(t, l.Records(), all)
	require.Len(t, grants, 1)
	assert.Equal(t, "turn 3", grants[0].Detail)
	require.Len(t, window, 1)
	assert.Equal(t, TurnGranted, window[0].Kind)
}

type failingSink struct{ closed bool }

func (f *failingSink) Append(context.Context, Record) error { return errors.New("disk full") }
func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestLog_SinkErrorKeepsRecord(t *testing.T) {
	l := NewLog("run")
	fs := &failingSink{}
	l.Attach(fs)

	rec, err := l.Append(context.Background(), New(1, Arrived))

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, uint64(0), rec.Seq)
	assert.Equal(t, 1, l.Len())
	require.NoError(t, l.Close())
	assert.True(t, fs.closed)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords())

	assert.Equal(t, 4, s.Records)
	assert.Equal(t, int64(0), s.FirstTime)
	assert.Equal(t, int64(9_000_000), s.LastTime)
	assert.Equal(t, 1, s.ByKind[TurnGranted])
	assert.Equal(t, 1, s.Agents)
	assert.Equal(t, 1, s.Trips)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Records)
	assert.NotNil(t, empty.ByKind)
}

func TestKind_TextRoundTrip(t *testing.T) {
	for i := 0; i < NumKinds; i++ {
		k := Kind(i)
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	_, err := Kind(NumKinds).MarshalText()
	assert.Error(t, err)
}
