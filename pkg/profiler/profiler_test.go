package profiler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// stubExecutor routes queries to a handler and records them.
type stubExecutor struct {
	mu      sync.Mutex
	queries []string
	handler func(sqlQuery string) (*datasource.QueryResult, error)
}

func (s *stubExecutor) Query(_ context.Context, sqlQuery string, _ int, _ time.Duration) (*datasource.QueryResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, sqlQuery)
	s.mu.Unlock()
	return s.handler(sqlQuery)
}

func (s *stubExecutor) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (s *stubExecutor) Dialect() string                    { return models.DialectGeneric }
func (s *stubExecutor) Close() error                       { return nil }

func (s *stubExecutor) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func newProfiler(exec datasource.QueryExecutor) *BatchProfiler {
	return NewBatchProfiler(exec, config.ProfilerConfig{
		Concurrency:  4,
		BatchTimeout: 30 * time.Second,
		SampleRows:   1000,
		TopValues:    5,
	}, nil, "testdb", zap.NewNop())
}

func simpleTable(name string, cols ...string) models.TableInfo {
	t := models.TableInfo{Name: name}
	for _, c := range cols {
		t.Columns = append(t.Columns, models.ColumnInfo{Name: c, DataType: "varchar(50)"})
	}
	return t
}

func TestProfileTableBasicStats(t *testing.T) {
	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(4)}}}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{
			{"city": "Austin", "score": int64(10)},
			{"city": "Austin", "score": int64(20)},
			{"city": "Boston", "score": int64(30)},
			{"city": nil, "score": int64(40)},
		}}, nil
	}}

	table := models.TableInfo{Name: "venues", Columns: []models.ColumnInfo{
		{Name: "city", DataType: "varchar(50)"},
		{Name: "score", DataType: "integer"},
	}}
	profile, err := newProfiler(exec).ProfileTable(context.Background(), &table)
	require.NoError(t, err)

	assert.Equal(t, int64(4), profile.RowCount)
	assert.Equal(t, 4, profile.SampledRows)
	require.Len(t, profile.Columns, 2)

	city := profile.Columns[0]
	assert.Equal(t, 0.25, city.NullRate)
	assert.Equal(t, int64(2), city.DistinctCount)
	require.NotEmpty(t, city.TopValues)
	assert.Equal(t, "Austin", city.TopValues[0].Value)
	assert.Equal(t, int64(2), city.TopValues[0].Count)

	score := profile.Columns[1]
	require.NotNil(t, score.Min)
	assert.Equal(t, 10.0, *score.Min)
	assert.Equal(t, 40.0, *score.Max)
	assert.Equal(t, 25.0, *score.Mean)
	assert.Equal(t, 25.0, *score.Median)
}

func TestFetchSampleFallsBackToExecutorRowCap(t *testing.T) {
	// SQL Server accepts neither FETCH FIRST nor LIMIT; the sample must go
	// through the executor's own dialect wrapping in that case.
	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, "FETCH FIRST") || strings.Contains(sqlQuery, "LIMIT") {
			return nil, fmt.Errorf("incorrect syntax near the keyword")
		}
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(2)}}}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{{"name": "a"}, {"name": "b"}}}, nil
	}}

	table := simpleTable("things", "name")
	profile, err := newProfiler(exec).ProfileTable(context.Background(), &table)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.SampledRows)

	queries := exec.recorded()
	require.GreaterOrEqual(t, len(queries), 3)
	assert.Contains(t, queries[0], "FETCH FIRST")
	assert.Contains(t, queries[1], "LIMIT")
	assert.Equal(t, `SELECT * FROM "things"`, queries[2], "plain query handed to the executor's row cap")
}

func TestProfileTablesBatchPersistsToDiskCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewDiskCache(dir)
	require.NoError(t, err)

	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(1)}}}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{{"name": "x"}}}, nil
	}}
	profiler := NewBatchProfiler(exec, config.ProfilerConfig{
		Concurrency:  2,
		BatchTimeout: 30 * time.Second,
		SampleRows:   10,
		TopValues:    5,
	}, cache, "analytics", zap.NewNop())

	results := profiler.ProfileTablesBatch(context.Background(), []models.TableInfo{
		simpleTable("orders", "name"),
	})
	require.Contains(t, results, "orders")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "a completed batch lands on disk")

	loaded, err := cache.Load("analytics")
	require.NoError(t, err)
	require.Contains(t, loaded, "orders")
	assert.Equal(t, int64(1), loaded["orders"].RowCount)
}

func TestFetchSampleFallsBackToLimit(t *testing.T) {
	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, "FETCH FIRST") {
			return nil, fmt.Errorf("syntax error near FETCH")
		}
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(1)}}}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{{"name": "x"}}}, nil
	}}

	table := simpleTable("things", "name")
	profile, err := newProfiler(exec).ProfileTable(context.Background(), &table)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.SampledRows)

	queries := exec.recorded()
	require.GreaterOrEqual(t, len(queries), 2)
	assert.Contains(t, queries[0], "FETCH FIRST")
	assert.Contains(t, queries[1], "LIMIT 1000")
}

func TestProfileTablesBatchPartialFailure(t *testing.T) {
	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, `"broken"`) {
			return nil, fmt.Errorf("relation does not exist")
		}
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(0)}}}, nil
		}
		return &datasource.QueryResult{}, nil
	}}

	tables := make([]models.TableInfo, 0, 10)
	for i := 0; i < 9; i++ {
		tables = append(tables, simpleTable(fmt.Sprintf("ok_%d", i), "name"))
	}
	tables = append(tables, simpleTable("broken", "name"))

	results := newProfiler(exec).ProfileTablesBatch(context.Background(), tables)
	assert.Len(t, results, 9, "failed table excluded, the rest succeed")
	assert.NotContains(t, results, "broken")
}

func TestProfileTablesBatchTimeoutKeepsPartialResults(t *testing.T) {
	release := make(chan struct{})
	exec := &stubExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, `"slow"`) {
			<-release
			return nil, context.DeadlineExceeded
		}
		if strings.Contains(sqlQuery, "COUNT(*)") {
			return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(0)}}}, nil
		}
		return &datasource.QueryResult{}, nil
	}}

	profiler := NewBatchProfiler(exec, config.ProfilerConfig{
		Concurrency:  4,
		BatchTimeout: 100 * time.Millisecond,
		SampleRows:   10,
		TopValues:    5,
	}, nil, "testdb", zap.NewNop())

	go func() {
		time.Sleep(200 * time.Millisecond)
		close(release)
	}()
	results := profiler.ProfileTablesBatch(context.Background(), []models.TableInfo{
		simpleTable("fast", "name"),
		simpleTable("slow", "name"),
	})

	assert.Contains(t, results, "fast")
	assert.NotContains(t, results, "slow")
}

func TestProfileTablesBatchEmptyInput(t *testing.T) {
	results := newProfiler(&stubExecutor{}).ProfileTablesBatch(context.Background(), nil)
	assert.Empty(t, results)
}

func TestTopValuesOrderingAndCap(t *testing.T) {
	counts := map[string]int64{"a": 5, "b": 5, "c": 9, "d": 1, "e": 2, "f": 3}

	top := topValues(counts, 4)
	require.Len(t, top, 4)
	assert.Equal(t, models.ValueCount{Value: "c", Count: 9}, top[0])
	assert.Equal(t, models.ValueCount{Value: "a", Count: 5}, top[1], "ties break alphabetically")
	assert.Equal(t, models.ValueCount{Value: "b", Count: 5}, top[2])
	assert.Equal(t, models.ValueCount{Value: "f", Count: 3}, top[3])
}

func TestQuantileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 2.5, quantile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 3.25, quantile(sorted, 0.75), 1e-9)
}
