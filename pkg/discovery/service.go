package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/apperrors"
	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/graph"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// ProcessLabeler assigns human-friendly names, colors and icons to
// discovered stages. Implementations are best-effort and must not fail the
// pipeline.
type ProcessLabeler interface {
	LabelProcesses(ctx context.Context, schemaDDL string, processes []*models.DiscoveredProcess)
}

// TableProfiler profiles the tables a discovery run implicates. Runs
// concurrently with enrichment.
type TableProfiler interface {
	ProfileTablesBatch(ctx context.Context, tables []models.TableInfo) map[string]*models.TableProfile
}

// Service orchestrates one discovery pipeline: snapshot → graph →
// detectors → candidate builder → enrichment → labeling, with profiling of
// implicated tables in parallel. Completed results are cached by
// connection identity.
type Service struct {
	cfg      *config.Config
	provider datasource.SchemaProvider
	executor datasource.QueryExecutor
	labeler  ProcessLabeler // optional
	profiler TableProfiler  // optional
	cache    *ResultCache
	logger   *zap.Logger
}

// NewService creates a discovery service. labeler and profiler may be nil
// to disable those phases.
func NewService(
	cfg *config.Config,
	provider datasource.SchemaProvider,
	executor datasource.QueryExecutor,
	labeler ProcessLabeler,
	profiler TableProfiler,
	cache *ResultCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		executor: executor,
		labeler:  labeler,
		profiler: profiler,
		cache:    cache,
		logger:   logger.Named("process-discovery"),
	}
}

// Discover runs the full pipeline for one connection. An empty result is a
// valid, silent outcome. Only snapshot acquisition is fatal; every later
// phase degrades to fewer or weaker processes.
func (s *Service) Discover(ctx context.Context, connectionID, schemaName string) ([]*models.DiscoveredProcess, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(connectionID)
		switch {
		case err == nil:
			s.logger.Debug("serving discovery result from cache",
				zap.String("connection", connectionID))
			return cached, nil
		case errors.Is(err, apperrors.ErrCacheExpired):
			s.logger.Debug("cached discovery result expired, rerunning",
				zap.String("connection", connectionID))
		}
	}

	snapshot, err := s.provider.Snapshot(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("fetch schema snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, apperrors.ErrSnapshotRequired
	}

	g := graph.NewSchemaGraph(snapshot, s.logger)
	stats := g.GetStats()
	s.logger.Info("schema graph built",
		zap.Int("tables", stats.TotalTables),
		zap.Int("edges", stats.TotalEdges),
		zap.Int("components", stats.ComponentCount))

	signals := Signals{
		StatusColumns:      DetectStatusColumns(snapshot.Tables),
		TransitionPatterns: DetectTransitionTables(snapshot.Tables),
		EntityChains:       DetectFKChains(snapshot.Tables, g),
		TimestampSequences: DetectTimestampSequences(snapshot.Tables),
		TriggerEvidence:    DetectTriggerSignals(snapshot),
	}

	builder := NewCandidateBuilder(s.cfg.Discovery, s.logger)
	processes := builder.Build(signals, stats)
	if len(processes) == 0 {
		if s.cache != nil {
			s.cache.Put(connectionID, nil)
		}
		return nil, nil
	}

	implicated := implicatedTables(snapshot, processes)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		NewEnricher(s.executor, s.cfg.Discovery, s.logger).Enrich(egCtx, processes)
		if s.labeler != nil {
			s.labeler.LabelProcesses(egCtx, schemaDDL(implicated), processes)
		}
		return nil
	})
	if s.profiler != nil {
		eg.Go(func() error {
			s.profiler.ProfileTablesBatch(egCtx, implicated)
			return nil
		})
	}
	// The phases degrade internally and never return errors; Wait only
	// propagates context cancellation.
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Abandoned mid-flight; leave the cache untouched.
		return nil, err
	}

	if s.cache != nil {
		s.cache.Put(connectionID, processes)
	}
	s.logger.Info("discovery complete",
		zap.String("connection", connectionID),
		zap.Int("processes", len(processes)))
	return processes, nil
}

// implicatedTables returns snapshot tables referenced by any surviving
// candidate, in snapshot order.
func implicatedTables(snapshot *models.SchemaSnapshot, processes []*models.DiscoveredProcess) []models.TableInfo {
	wanted := make(map[string]struct{})
	for _, p := range processes {
		for _, t := range p.Tables {
			wanted[strings.ToUpper(t)] = struct{}{}
		}
	}
	var tables []models.TableInfo
	for i := range snapshot.Tables {
		if _, ok := wanted[snapshot.Tables[i].Key()]; ok {
			tables = append(tables, snapshot.Tables[i])
		}
	}
	return tables
}

// schemaDDL renders implicated tables as CREATE TABLE text for the
// labeling prompt.
func schemaDDL(tables []models.TableInfo) string {
	var b strings.Builder
	for i := range tables {
		t := &tables[i]
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
		for j, col := range t.Columns {
			b.WriteString("  " + col.Name + " " + col.DataType)
			if col.IsPrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			if col.IsForeignKey && col.ForeignKeyRef != "" {
				b.WriteString(" REFERENCES " + col.ForeignKeyRef)
			}
			if j < len(t.Columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n")
	}
	return b.String()
}
