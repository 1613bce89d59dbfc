// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

func sampleRecord(query string) types.ResearchRecord {
	score := 0.5
	return types.ResearchRecord{
		Query: query,
		Plan:  types.ResearchPlan{QueryAnalysis: "qa", Tasks: []string{"t1"}},
		Results: []types.TaskResult{{
			Task: "t1",
			RetrievalResults: types.RetrievalResult{
				Sources: []types.Source{{Title: "S", Year: "2020", Content: "c", RelevanceScore: &score}},
			},
			Analysis: types.Analysis{Summary: "sum"},
		}},
		Report: "report",
		Timing: "Research completed in 0 minutes and 1 seconds.",
	}
}

// --- Store ---

func TestStorePutGet(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("s1", "q")
	assert.False(t, ok)

	rec := sampleRecord("q")
	s.Put("s1", "q", rec)

	got, ok := s.Get("s1", "q")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok = s.Get("s1", "Q")
	assert.False(t, ok, "query keys are exact text")
	_, ok = s.Get("s2", "q")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStoreTaskResults(t *testing.T) {
	s := NewStore()
	assert.Empty(t, s.AllTaskResults("s1", "q"))
	assert.NotNil(t, s.AllTaskResults("s1", "q"))

	s.PutTaskResult("s1", "q", "a", types.TaskResult{Task: "a"})
	s.PutTaskResult("s1", "q", "b", types.TaskResult{Task: "b"})
	s.PutTaskResult("s1", "other", "a", types.TaskResult{Task: "a2"})

	got, ok := s.GetTaskResult("s1", "q", "a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Task)

	all := s.AllTaskResults("s1", "q")
	assert.Len(t, all, 2)
	delete(all, "a")
	assert.Len(t, s.AllTaskResults("s1", "q"), 2, "returned map is a copy")

	_, ok = s.GetTaskResult("s1", "q", "missing")
	assert.False(t, ok)
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Put("s1", "q1", sampleRecord("q1"))
	s.Put("s1", "q2", sampleRecord("q2"))
	s.PutTaskResult("s1", "q1", "t", types.TaskResult{})
	s.Put("s2", "q1", sampleRecord("q1"))

	s.Clear("s1")

	for _, q := range []string{"q1", "q2"} {
		_, ok := s.Get("s1", q)
		assert.False(t, ok)
		assert.Empty(t, s.AllTaskResults("s1", q))
	}
	_, ok := s.Get("s2", "q1")
	assert.True(t, ok, "other sessions survive")
	assert.Equal(t, []string{"s2"}, s.Sessions())
}

func TestStoreSessionsAndQueries(t *testing.T) {
	s := NewStore()
	s.Put("b", "q2", types.ResearchRecord{})
	s.Put("b", "q1", types.ResearchRecord{})
	s.PutTaskResult("a", "q", "t", types.TaskResult{})

	assert.Equal(t, []string{"a", "b"}, s.Sessions())
	assert.Equal(t, []string{"q1", "q2"}, s.Queries("b"))
	assert.Empty(t, s.Queries("a"))
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i%4)
			query := fmt.Sprintf("q%d", i)
			s.PutTaskResult(session, query, "t", types.TaskResult{Task: "t"})
			s.Put(session, query, sampleRecord(query))
			s.Get(session, query)
			s.AllTaskResults(session, query)
			_, _ = s.Serialize()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}

func TestSerializeRoundTrip(t *testing.T) {
	s := NewStore()
	s.Put("s1", "q", sampleRecord("q"))
	s.PutTaskResult("s1", "q", "t1", sampleRecord("q").Results[0])

	data, err := s.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"research_store"`)
	assert.Contains(t, string(data), `"task_store"`)

	restored := NewStore()
	require.NoError(t, restored.Deserialize(data))

	got, ok := restored.Get("s1", "q")
	require.True(t, ok)
	assert.Equal(t, sampleRecord("q"), got)
	_, ok = restored.GetTaskResult("s1", "q", "t1")
	assert.True(t, ok)
}

func TestDeserializeFailureLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	s.Put("s1", "q", sampleRecord("q"))

	err := s.Deserialize([]byte("{not json"))
	require.Error(t, err)

	_, ok := s.Get("s1", "q")
	assert.True(t, ok)
}

func TestDeserializeEmptyObject(t *testing.T) {
	s := NewStore()
	s.Put("s1", "q", sampleRecord("q"))
	require.NoError(t, s.Deserialize([]byte("{}")))
	assert.Zero(t, s.Len())

	s.Put("s1", "q", sampleRecord("q"))
	assert.Equal(t, 1, s.Len(), "store usable after empty restore")
}

func TestDeserializeNullInnerMaps(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"null research session", `{"research_store":{"s1":null}}`},
		{"null task session", `{"task_store":{"s1":null}}`},
		{"null task query", `{"task_store":{"s1":{"q":null}}}`},
		{"all null", `{"research_store":{"s1":null},"task_store":{"s1":{"q":null}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			require.NoError(t, s.Deserialize([]byte(tt.data)))
			assert.Empty(t, s.Sessions())

			assert.NotPanics(t, func() { s.Put("s1", "q", sampleRecord("q")) })
			assert.NotPanics(t, func() { s.PutTaskResult("s1", "q", "t", types.TaskResult{Task: "t"}) })

			_, ok := s.Get("s1", "q")
			assert.True(t, ok)
			_, ok = s.GetTaskResult("s1", "q", "t")
			assert.True(t, ok)
		})
	}
}

func TestStoreRecordsAreIsolated(t *testing.T) {
	s := NewStore()
	rec := sampleRecord("q")
	s.Put("s1", "q", rec)
	s.PutTaskResult("s1", "q", "t1", rec.Results[0])

	// Mutating the caller's copy after Put leaves the stored record alone.
	rec.Results[0].Task = "changed before read"
	rec.Plan.Tasks[0] = "changed before read"

	got, ok := s.Get("s1", "q")
	require.True(t, ok)
	got.Results[0].Task = "mutated"
	got.Results[0].Analysis.Summary = "mutated"
	*got.Results[0].RetrievalResults.Sources[0].RelevanceScore = 99
	got.Plan.Tasks[0] = "mutated"

	again, ok := s.Get("s1", "q")
	require.True(t, ok)
	assert.Equal(t, sampleRecord("q"), again)

	res, ok := s.GetTaskResult("s1", "q", "t1")
	require.True(t, ok)
	res.RetrievalResults.Sources[0].Title = "mutated"
	all := s.AllTaskResults("s1", "q")
	all["t1"].RetrievalResults.Sources[0].Content = "mutated"

	res, ok = s.GetTaskResult("s1", "q", "t1")
	require.True(t, ok)
	assert.Equal(t, sampleRecord("q").Results[0], res)
}

// --- Export ---

func TestExportYAMLAndJSON(t *testing.T) {
	s := NewStore()
	s.Put("s1", "housing", sampleRecord("housing"))

	var yb bytes.Buffer
	require.NoError(t, s.ExportYAML(&yb))
	var parsed map[string]map[string]map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(yb.Bytes(), &parsed))
	assert.Equal(t, "report", parsed["research_store"]["s1"]["housing"]["report"])

	var jb bytes.Buffer
	require.NoError(t, s.ExportJSON(&jb))
	restored := NewStore()
	require.NoError(t, restored.Deserialize(jb.Bytes()))
	got, ok := restored.Get("s1", "housing")
	require.True(t, ok)
	assert.Equal(t, "report", got.Report)
}

// --- Persisters ---

func exercisePersister(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, p.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, p.Save(ctx, []byte(`{"v":2}`)))

	data, err := p.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestFilePersister(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "nested", "memory.json"))
	exercisePersister(t, p)
	assert.Equal(t, "file", p.Name())
	require.NoError(t, p.Close())
}

func TestSQLitePersister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	p, err := NewSQLitePersister(path)
	require.NoError(t, err)
	exercisePersister(t, p)

	for i := range keepSnapshots + 3 {
		require.NoError(t, p.Save(context.Background(), []byte(fmt.Sprintf(`{"v":%d}`, i))))
	}
	var n int
	require.NoError(t, p.db.QueryRow(`SELECT COUNT(*) FROM memory_snapshots`).Scan(&n))
	assert.Equal(t, keepSnapshots, n)
	require.NoError(t, p.Close())

	// Reopen: the newest snapshot survives.
	p2, err := NewSQLitePersister(path)
	require.NoError(t, err)
	defer p2.Close()
	data, err := p2.Load(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"v":%d}`, keepSnapshots+2), string(data))
}

func TestRedisPersister(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	p := NewRedisPersisterWithClient(client, "test:memory")
	exercisePersister(t, p)

	raw, err := mr.Get("test:memory")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, raw)
	require.NoError(t, p.Close())
}

func TestNewRedisPersisterRequiresAddr(t *testing.T) {
	_, err := NewRedisPersister("", "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     types.MemoryConfig
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "default", cfg: types.MemoryConfig{}, wantNil: true},
		{name: "in-process", cfg: types.MemoryConfig{Backend: types.MemoryInProcess}, wantNil: true},
		{name: "file", cfg: types.MemoryConfig{Backend: types.MemoryFile, Path: filepath.Join(dir, "m.json")}, want: "file"},
		{name: "sqlite", cfg: types.MemoryConfig{Backend: types.MemorySQLite, Path: filepath.Join(dir, "m.db")}, want: "sqlite"},
		{name: "unknown", cfg: types.MemoryConfig{Backend: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			defer p.Close()
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

// --- Durable ---

func TestDurableSavesAfterPutAndRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	logger := zaptest.NewLogger(t)

	d := NewDurable(NewStore(), NewFilePersister(path), logger)
	require.NoError(t, d.Restore(context.Background()), "missing snapshot is not an error")

	d.Put("s1", "q", sampleRecord("q"))
	_, err := os.Stat(path)
	require.NoError(t, err)

	d2 := NewDurable(NewStore(), NewFilePersister(path), logger)
	require.NoError(t, d2.Restore(context.Background()))
	got, ok := d2.Get("s1", "q")
	require.True(t, ok)
	assert.Equal(t, sampleRecord("q"), got)

	d2.Clear("s1")
	d3 := NewDurable(NewStore(), NewFilePersister(path), logger)
	require.NoError(t, d3.Restore(context.Background()))
	assert.Zero(t, d3.Len())
}

func TestDurableRestoreCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	d := NewDurable(NewStore(), NewFilePersister(path), zaptest.NewLogger(t))
	assert.Error(t, d.Restore(context.Background()))
	assert.Zero(t, d.Len())
}

func TestDurableWithoutPersister(t *testing.T) {
	d := NewDurable(NewStore(), nil, nil)
	require.NoError(t, d.Restore(context.Background()))
	d.Put("s", "q", sampleRecord("q"))
	require.NoError(t, d.Flush(context.Background()))
	require.NoError(t, d.Close())
	assert.Equal(t, 1, d.Len())
}
