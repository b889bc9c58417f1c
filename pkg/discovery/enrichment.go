package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/logging"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// statusCardinalityDemotion is the confidence multiplier applied when a
// grouped status column turns out not to be a true enumeration.
const statusCardinalityDemotion = 0.3

// statusEnrichmentBoost rewards a status column that grouped into a small,
// real stage set.
const statusEnrichmentBoost = 0.1

// transitionQueryLimit caps rows fetched by the grouped transition query.
const transitionQueryLimit = 500

// durationSampleLimit caps rows fetched for dwell-time reconstruction.
const durationSampleLimit = 1000

// Enricher issues live aggregate queries for surviving candidates and
// fills in stages, counts, branches and durations. A failure on one
// candidate never aborts the others.
type Enricher struct {
	executor datasource.QueryExecutor
	cfg      config.DiscoveryConfig
	logger   *zap.Logger
}

// NewEnricher creates a data enricher bound to a query executor.
func NewEnricher(executor datasource.QueryExecutor, cfg config.DiscoveryConfig, logger *zap.Logger) *Enricher {
	return &Enricher{executor: executor, cfg: cfg, logger: logger.Named("enricher")}
}

// Enrich processes every candidate in place. Candidates with a transition
// pattern get the full transition topology; candidates with only a status
// column get observed stage values in frequency order.
func (e *Enricher) Enrich(ctx context.Context, processes []*models.DiscoveredProcess) {
	for _, p := range processes {
		var err error
		switch {
		case p.TransitionPattern != nil:
			err = e.enrichTransitions(ctx, p)
		case p.StatusColumn != nil:
			err = e.enrichStatus(ctx, p)
		default:
			continue
		}
		if err != nil {
			// Isolate and continue: the candidate keeps whatever partial
			// data it had, possibly zero stages.
			e.logger.Warn("enrichment failed for candidate",
				zap.String("process", p.ID),
				zap.Error(err))
		}
	}
}

// enrichTransitions runs the grouped (from, to) query and derives stages,
// branches, per-stage counts and the topological stage order.
func (e *Enricher) enrichTransitions(ctx context.Context, p *models.DiscoveredProcess) error {
	tp := p.TransitionPattern
	q := e.executor
	from := q.QuoteIdentifier(tp.FromColumn)
	to := q.QuoteIdentifier(tp.ToColumn)
	table := q.QuoteIdentifier(tp.Table)

	query := fmt.Sprintf(
		"SELECT %s AS from_stage, %s AS to_stage, COUNT(*) AS cnt FROM %s GROUP BY %s, %s ORDER BY cnt DESC",
		from, to, table, from, to)
	e.logger.Debug("transition query", zap.String("sql", logging.SanitizeQuery(query)))
	result, err := q.Query(ctx, query, transitionQueryLimit, e.cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("transition query: %w", err)
	}

	tp.Transitions = tp.Transitions[:0]
	for _, row := range result.Rows {
		fromVal, okFrom := stringValue(row["from_stage"])
		toVal, okTo := stringValue(row["to_stage"])
		if !okFrom || !okTo {
			continue
		}
		tp.Transitions = append(tp.Transitions, models.Transition{
			From:  fromVal,
			To:    toVal,
			Count: int64Value(row["cnt"]),
		})
	}
	if len(tp.Transitions) == 0 {
		return nil
	}

	outbound := make(map[string]map[string]struct{})
	counts := make(map[string]int64)
	stageSet := make(map[string]struct{})
	for _, tr := range tp.Transitions {
		stageSet[tr.From] = struct{}{}
		stageSet[tr.To] = struct{}{}
		counts[tr.From] += tr.Count
		set, ok := outbound[tr.From]
		if !ok {
			set = make(map[string]struct{})
			outbound[tr.From] = set
		}
		set[tr.To] = struct{}{}
	}

	branches := make(map[string][]string)
	for stage, targets := range outbound {
		if len(targets) <= 1 {
			continue
		}
		next := make([]string, 0, len(targets))
		for t := range targets {
			next = append(next, t)
		}
		sort.Strings(next)
		branches[stage] = next
	}

	p.Stages = topologicalStageOrder(tp.Transitions, stageSet)
	p.StageCounts = counts
	if len(branches) > 0 {
		p.Branches = branches
	}
	p.AddEvidence(models.Evidence{
		SignalType:  models.SignalTransitionTable,
		Description: fmt.Sprintf("observed %d distinct transitions across %d stages", len(tp.Transitions), len(p.Stages)),
		Strength:    statusEnrichmentBoost,
		Table:       tp.Table,
	})

	if tp.TimestampColumn != "" {
		if err := e.enrichDurations(ctx, p); err != nil {
			e.logger.Warn("duration enrichment failed",
				zap.String("process", p.ID),
				zap.Error(err))
		}
	}
	return nil
}

// enrichDurations reconstructs per-stage dwell times from a timestamp-ordered
// sample of transition rows: when one row's target stage is the next row's
// source stage, the gap between their timestamps is time spent in that stage.
func (e *Enricher) enrichDurations(ctx context.Context, p *models.DiscoveredProcess) error {
	tp := p.TransitionPattern
	q := e.executor
	query := fmt.Sprintf(
		"SELECT %s AS from_stage, %s AS to_stage, %s AS at FROM %s ORDER BY %s",
		q.QuoteIdentifier(tp.FromColumn),
		q.QuoteIdentifier(tp.ToColumn),
		q.QuoteIdentifier(tp.TimestampColumn),
		q.QuoteIdentifier(tp.Table),
		q.QuoteIdentifier(tp.TimestampColumn))
	result, err := q.Query(ctx, query, durationSampleLimit, e.cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("duration sample query: %w", err)
	}

	totals := make(map[string]float64)
	samples := make(map[string]int)
	var prevTo string
	var prevAt time.Time
	havePrev := false
	for _, row := range result.Rows {
		fromVal, _ := stringValue(row["from_stage"])
		toVal, _ := stringValue(row["to_stage"])
		at, ok := timeValue(row["at"])
		if !ok {
			continue
		}
		if havePrev && prevTo == fromVal && at.After(prevAt) {
			totals[fromVal] += at.Sub(prevAt).Seconds()
			samples[fromVal]++
		}
		prevTo, prevAt, havePrev = toVal, at, true
	}
	if len(totals) == 0 {
		return nil
	}

	durations := make(map[string]float64, len(totals))
	slowest, slowestMean := "", -1.0
	for stage, total := range totals {
		mean := total / float64(samples[stage])
		durations[stage] = mean
		if mean > slowestMean || (mean == slowestMean && stage < slowest) {
			slowest, slowestMean = stage, mean
		}
	}
	p.StageDurations = durations
	p.SlowestStage = slowest
	return nil
}

// enrichStatus groups the status column and adopts the observed values as
// stages, unless cardinality exceeds the configured ceiling, in which case
// the column is demoted as a non-enumeration.
func (e *Enricher) enrichStatus(ctx context.Context, p *models.DiscoveredProcess) error {
	sc := p.StatusColumn
	q := e.executor
	col := q.QuoteIdentifier(sc.Column)
	table := q.QuoteIdentifier(sc.Table)

	query := fmt.Sprintf(
		"SELECT %s AS stage, COUNT(*) AS cnt FROM %s GROUP BY %s ORDER BY cnt DESC",
		col, table, col)
	e.logger.Debug("status group query", zap.String("sql", logging.SanitizeQuery(query)))
	result, err := q.Query(ctx, query, e.cfg.MaxStatusCardinality+1, e.cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("status group query: %w", err)
	}

	if len(result.Rows) > e.cfg.MaxStatusCardinality {
		// Too many distinct values for a real status enumeration; demote,
		// don't eliminate.
		p.Confidence *= statusCardinalityDemotion
		sc.Cardinality = len(result.Rows)
		e.logger.Debug("status column demoted by cardinality",
			zap.String("process", p.ID),
			zap.Int("observed", len(result.Rows)))
		return nil
	}

	counts := make(map[string]int64, len(result.Rows))
	var stages []string
	for _, row := range result.Rows {
		stage, ok := stringValue(row["stage"])
		if !ok {
			continue
		}
		stages = append(stages, stage)
		counts[stage] = int64Value(row["cnt"])
	}
	if len(stages) == 0 {
		return nil
	}

	sc.DistinctValues = stages
	sc.Cardinality = len(stages)
	p.Stages = stages
	p.StageCounts = counts
	p.AddEvidence(models.Evidence{
		SignalType:  models.SignalStatusColumn,
		Description: fmt.Sprintf("observed %d live status values", len(stages)),
		Strength:    statusEnrichmentBoost,
		Table:       sc.Table,
		Column:      sc.Column,
	})
	return nil
}

// topologicalStageOrder orders stages with Kahn's algorithm: zero-in-degree
// stages leave first in lexicographic tie-break order; stages trapped in
// cycles are appended at the end, also lexicographically. Terminates on any
// input, including self-loops.
func topologicalStageOrder(transitions []models.Transition, stageSet map[string]struct{}) []string {
	inDegree := make(map[string]int, len(stageSet))
	successors := make(map[string][]string)
	for stage := range stageSet {
		inDegree[stage] = 0
	}
	seenEdge := make(map[[2]string]struct{})
	for _, tr := range transitions {
		if tr.From == tr.To {
			continue
		}
		key := [2]string{tr.From, tr.To}
		if _, dup := seenEdge[key]; dup {
			continue
		}
		seenEdge[key] = struct{}{}
		successors[tr.From] = append(successors[tr.From], tr.To)
		inDegree[tr.To]++
	}

	var ready []string
	for stage, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, stage)
		}
	}
	sort.Strings(ready)

	ordered := make([]string, 0, len(stageSet))
	removed := make(map[string]bool, len(stageSet))
	for len(ready) > 0 {
		stage := ready[0]
		ready = ready[1:]
		ordered = append(ordered, stage)
		removed[stage] = true
		newlyReady := false
		for _, next := range successors[stage] {
			inDegree[next]--
			if inDegree[next] == 0 && !removed[next] {
				ready = append(ready, next)
				newlyReady = true
			}
		}
		if newlyReady {
			sort.Strings(ready)
		}
	}

	// Anything never removed sits on a cycle; append lexicographically.
	var cyclic []string
	for stage := range stageSet {
		if !removed[stage] {
			cyclic = append(cyclic, stage)
		}
	}
	sort.Strings(cyclic)
	return append(ordered, cyclic...)
}

// ============================================================================
// Row value coercion
// ============================================================================

func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func int64Value(v any) int64 {
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

func timeValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
