package discovery

import (
	"context"
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

type fakeProvider struct {
	snapshot *models.SchemaSnapshot
	calls    int
}

func (f *fakeProvider) Snapshot(_ context.Context, _ string) (*models.SchemaSnapshot, error) {
	f.calls++
	return f.snapshot, nil
}

type fakeProfiler struct {
	mu     sync.Mutex
	tables []string
}

func (f *fakeProfiler) ProfileTablesBatch(_ context.Context, tables []models.TableInfo) map[string]*models.TableProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tables {
		f.tables = append(f.tables, t.Name)
	}
	return map[string]*models.TableProfile{}
}

// orderFulfillmentSnapshot models the classic order lifecycle log.
func orderFulfillmentSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		SchemaName: "public",
		Dialect:    models.DialectGeneric,
		Tables: []models.TableInfo{
			{Name: "ORDER_PROCESS_LOG", Columns: []models.ColumnInfo{
				{Name: "from_status", DataType: "varchar(30)"},
				{Name: "to_status", DataType: "varchar(30)"},
				{Name: "changed_at", DataType: "timestamp"},
			}},
			{Name: "ORDERS", Columns: []models.ColumnInfo{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			}},
		},
	}
}

func orderFulfillmentExecutor() *fakeExecutor {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeExecutor{handler: func(sqlQuery string) (*datasource.QueryResult, error) {
		if strings.Contains(sqlQuery, "GROUP BY") {
			return &datasource.QueryResult{Rows: []map[string]any{
				{"from_stage": "order_placed", "to_stage": "payment_pending", "cnt": int64(120)},
				{"from_stage": "payment_pending", "to_stage": "packing", "cnt": int64(115)},
				{"from_stage": "packing", "to_stage": "shipped", "cnt": int64(110)},
				{"from_stage": "shipped", "to_stage": "delivered", "cnt": int64(105)},
			}}, nil
		}
		return &datasource.QueryResult{Rows: []map[string]any{
			{"from_stage": "order_placed", "to_stage": "payment_pending", "at": base},
			{"from_stage": "payment_pending", "to_stage": "packing", "at": base.Add(30 * time.Minute)},
			{"from_stage": "packing", "to_stage": "shipped", "at": base.Add(30*time.Minute + 8*time.Hour)},
			{"from_stage": "shipped", "to_stage": "delivered", "at": base.Add(30*time.Minute + 8*time.Hour + 2*time.Hour)},
		}}, nil
	}}
}

func newTestService(provider datasource.SchemaProvider, exec datasource.QueryExecutor, prof TableProfiler) *Service {
	return NewService(config.Default(), provider, exec, nil, prof, NewResultCache(10*time.Minute), zap.NewNop())
}

func TestDiscoverOrderFulfillment(t *testing.T) {
	provider := &fakeProvider{snapshot: orderFulfillmentSnapshot()}
	exec := orderFulfillmentExecutor()
	profiler := &fakeProfiler{}
	svc := newTestService(provider, exec, profiler)

	processes, err := svc.Discover(context.Background(), "conn-1", "public")
	require.NoError(t, err)
	require.Len(t, processes, 1)

	p := processes[0]
	assert.Equal(t, "order_process_log", p.ID)
	require.NotEmpty(t, p.Stages)
	assert.Equal(t, "order_placed", p.Stages[0])
	assert.Equal(t, "delivered", p.Stages[len(p.Stages)-1])
	assert.Equal(t, "packing", p.SlowestStage, "largest average dwell time")
	assert.GreaterOrEqual(t, p.Confidence, 0.30)
	assert.NotEmpty(t, p.Evidence)

	assert.Contains(t, profiler.tables, "ORDER_PROCESS_LOG", "profiler runs over implicated tables")
}

func TestDiscoverCachesWithinTTL(t *testing.T) {
	provider := &fakeProvider{snapshot: orderFulfillmentSnapshot()}
	exec := orderFulfillmentExecutor()
	svc := newTestService(provider, exec, nil)

	first, err := svc.Discover(context.Background(), "conn-1", "public")
	require.NoError(t, err)
	queriesAfterFirst := exec.queryCount()

	second, err := svc.Discover(context.Background(), "conn-1", "public")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same result by value")
	assert.Equal(t, queriesAfterFirst, exec.queryCount(), "no database traffic on a cache hit")
	assert.Equal(t, 1, provider.calls, "snapshot fetched once")
}

func TestDiscoverDistinctConnectionsDoNotShareCache(t *testing.T) {
	provider := &fakeProvider{snapshot: orderFulfillmentSnapshot()}
	exec := orderFulfillmentExecutor()
	svc := newTestService(provider, exec, nil)

	_, err := svc.Discover(context.Background(), "conn-1", "public")
	require.NoError(t, err)
	_, err = svc.Discover(context.Background(), "conn-2", "public")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.calls)
}

func TestDiscoverEmptySchemaIsSilentlyEmpty(t *testing.T) {
	provider := &fakeProvider{snapshot: &models.SchemaSnapshot{SchemaName: "public"}}
	svc := newTestService(provider, &fakeExecutor{}, nil)

	processes, err := svc.Discover(context.Background(), "conn-1", "public")
	require.NoError(t, err)
	assert.Empty(t, processes, "no processes is a valid outcome, not an error")
}

func TestDiscoverNilSnapshotIsFatal(t *testing.T) {
	provider := &fakeProvider{snapshot: nil}
	svc := newTestService(provider, &fakeExecutor{}, nil)

	_, err := svc.Discover(context.Background(), "conn-1", "public")
	assert.Error(t, err, "a missing snapshot surfaces immediately")
}
