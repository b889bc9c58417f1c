package profiler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// BatchProfiler profiles tables under bounded concurrency and a bounded
// total wall clock. A per-table failure is logged and excluded from the
// result map; an overall timeout keeps whatever completed so far. Completed
// batches are persisted to the disk cache under the database name.
type BatchProfiler struct {
	executor datasource.QueryExecutor
	cfg      config.ProfilerConfig
	cache    *DiskCache
	database string
	logger   *zap.Logger
}

// NewBatchProfiler creates a batch profiler bound to a query executor.
// cache may be nil to disable disk persistence; database keys the persisted
// profiles.
func NewBatchProfiler(executor datasource.QueryExecutor, cfg config.ProfilerConfig, cache *DiskCache, database string, logger *zap.Logger) *BatchProfiler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}
	if cfg.SampleRows < 1 {
		cfg.SampleRows = 1000
	}
	if cfg.TopValues < 1 {
		cfg.TopValues = 10
	}
	return &BatchProfiler{
		executor: executor,
		cfg:      cfg,
		cache:    cache,
		database: database,
		logger:   logger.Named("batch-profiler"),
	}
}

// ProfileTablesBatch profiles every table with at most cfg.Concurrency
// in flight and cfg.BatchTimeout overall. The returned map contains only
// the tables that profiled successfully.
func (b *BatchProfiler) ProfileTablesBatch(ctx context.Context, tables []models.TableInfo) map[string]*models.TableProfile {
	if len(tables) == 0 {
		return map[string]*models.TableProfile{}
	}

	if b.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.BatchTimeout)
		defer cancel()
	}

	results := make(map[string]*models.TableProfile, len(tables))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, b.cfg.Concurrency)

	for i := range tables {
		table := tables[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			profile, err := b.ProfileTable(ctx, &table)
			if err != nil {
				b.logger.Warn("table profiling failed",
					zap.String("table", table.Name),
					zap.Error(err))
				return
			}
			mu.Lock()
			results[table.Name] = profile
			mu.Unlock()
		}()
	}
	wg.Wait()

	if b.cache != nil && len(results) > 0 {
		if err := b.cache.Save(b.database, results); err != nil {
			b.logger.Warn("persisting profiles failed", zap.Error(err))
		}
	}

	b.logger.Info("batch profiling complete",
		zap.Int("requested", len(tables)),
		zap.Int("profiled", len(results)))
	return results
}

// ProfileTable profiles a single table: capped row sample, exact row count,
// per-column statistics, semantic type, anomalies.
func (b *BatchProfiler) ProfileTable(ctx context.Context, table *models.TableInfo) (*models.TableProfile, error) {
	sample, err := b.fetchSample(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("fetch sample: %w", err)
	}

	rowCount, err := b.fetchRowCount(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("fetch row count: %w", err)
	}

	profile := &models.TableProfile{
		Table:       table.Name,
		SchemaName:  table.SchemaName,
		RowCount:    rowCount,
		SampledRows: sample.RowCount(),
		ProfiledAt:  time.Now(),
	}
	for i := range table.Columns {
		profile.Columns = append(profile.Columns, b.profileColumn(&table.Columns[i], sample))
	}
	return profile, nil
}

// fetchSample reads a capped row sample. Oracle-family dialects take a
// FETCH FIRST clause; dialects that reject it get a LIMIT clause; dialects
// that reject both (SQL Server has neither form) fall through to the
// executor's own row capping, which wraps with TOP/LIMIT per dialect.
func (b *BatchProfiler) fetchSample(ctx context.Context, table *models.TableInfo) (*datasource.QueryResult, error) {
	name := b.executor.QuoteIdentifier(table.Name)
	fetchFirst := fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", name, b.cfg.SampleRows)
	result, err := b.executor.Query(ctx, fetchFirst, 0, 0)
	if err == nil {
		return result, nil
	}

	limit := fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, b.cfg.SampleRows)
	if result, err = b.executor.Query(ctx, limit, 0, 0); err == nil {
		return result, nil
	}

	capped, err := b.executor.Query(ctx, "SELECT * FROM "+name, b.cfg.SampleRows, 0)
	if err != nil {
		return nil, fmt.Errorf("sampling failed in every dialect form: %w", err)
	}
	return capped, nil
}

func (b *BatchProfiler) fetchRowCount(ctx context.Context, table *models.TableInfo) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS cnt FROM %s", b.executor.QuoteIdentifier(table.Name))
	result, err := b.executor.Query(ctx, query, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return toInt64(result.Rows[0]["cnt"]), nil
}

// profileColumn computes statistics for one declared column from the sample.
func (b *BatchProfiler) profileColumn(col *models.ColumnInfo, sample *datasource.QueryResult) models.ColumnProfile {
	profile := models.ColumnProfile{
		Name:     col.Name,
		DataType: col.DataType,
	}

	var values []string
	var numbers []float64
	nulls := 0
	counts := make(map[string]int64)
	for _, row := range sample.Rows {
		v, present := row[col.Name]
		if !present || v == nil {
			nulls++
			continue
		}
		s := fmt.Sprintf("%v", v)
		values = append(values, s)
		counts[s]++
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			numbers = append(numbers, f)
		}
	}

	total := len(sample.Rows)
	if total > 0 {
		profile.NullRate = float64(nulls) / float64(total)
	}
	profile.DistinctCount = int64(len(counts))

	if len(numbers) > 0 {
		profile.Min = ptr(minFloat(numbers))
		profile.Max = ptr(maxFloat(numbers))
		profile.Mean = ptr(mean(numbers))
		profile.Median = ptr(median(numbers))
		profile.StdDev = ptr(stdDev(numbers))
	}

	profile.TopValues = topValues(counts, b.cfg.TopValues)
	profile.SemanticType = DetectSemanticType(col, values, profile.DistinctCount, int64(total))
	profile.Anomalies = DetectAnomalies(&profile, numbers, total)
	return profile
}

// ============================================================================
// Numeric helpers
// ============================================================================

func ptr(f float64) *float64 { return &f }

func minFloat(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxFloat(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// quantile returns the linearly interpolated q-quantile of sorted data.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topValues(counts map[string]int64, n int) []models.ValueCount {
	entries := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		entries = append(entries, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Value < entries[j].Value
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
