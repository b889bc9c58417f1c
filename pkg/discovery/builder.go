package discovery

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/graph"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Signals bundles the raw detector outputs handed to the candidate builder.
type Signals struct {
	StatusColumns      []models.ColumnCandidate
	TransitionPatterns []models.TransitionPattern
	EntityChains       []models.EntityChain
	TimestampSequences []models.ColumnCandidate
	TriggerEvidence    []models.Evidence
}

// CandidateBuilder merges detector signals into weighted DiscoveredProcess
// candidates and applies the minimum-evidence filter.
type CandidateBuilder struct {
	cfg    config.DiscoveryConfig
	logger *zap.Logger
}

// NewCandidateBuilder creates a candidate builder with the given weights.
func NewCandidateBuilder(cfg config.DiscoveryConfig, logger *zap.Logger) *CandidateBuilder {
	return &CandidateBuilder{cfg: cfg, logger: logger.Named("candidate-builder")}
}

// Build merges all signals keyed by normalized table id. Signals pointing
// at the same table merge into one candidate: table lists union, evidence
// concatenates, confidence re-accumulates with a 1.0 cap. Candidates
// survive the filter with confidence >= MinConfidence or evidence from at
// least MinSignalTypes distinct signal types.
func (b *CandidateBuilder) Build(signals Signals, stats *graph.Stats) []*models.DiscoveredProcess {
	candidates := make(map[string]*models.DiscoveredProcess)
	var order []string

	get := func(table string) *models.DiscoveredProcess {
		id := models.NormalizeProcessID(table)
		if p, ok := candidates[id]; ok {
			return p
		}
		p := &models.DiscoveredProcess{
			ID:          id,
			Name:        processDisplayName(table),
			Description: fmt.Sprintf("Process inferred from table %s", table),
			Tables:      []string{strings.ToUpper(table)},
		}
		candidates[id] = p
		order = append(order, id)
		return p
	}

	addTable := func(p *models.DiscoveredProcess, table string) {
		if !p.HasTable(table) {
			p.Tables = append(p.Tables, strings.ToUpper(table))
		}
	}

	for i := range signals.TransitionPatterns {
		tp := signals.TransitionPatterns[i]
		p := get(tp.Table)
		if p.TransitionPattern == nil {
			p.TransitionPattern = &tp
		}
		p.AddEvidence(models.Evidence{
			SignalType:  models.SignalTransitionTable,
			Description: fmt.Sprintf("columns %s/%s record state transitions", tp.FromColumn, tp.ToColumn),
			Strength:    b.cfg.TransitionWeight,
			Table:       tp.Table,
			Column:      tp.FromColumn,
		})
	}

	for i := range signals.StatusColumns {
		sc := signals.StatusColumns[i]
		p := get(sc.Table)
		if p.StatusColumn == nil || sc.Confidence > p.StatusColumn.Confidence {
			p.StatusColumn = &sc
		}
		p.AddEvidence(models.Evidence{
			SignalType:  models.SignalStatusColumn,
			Description: fmt.Sprintf("column %s looks like a lifecycle status", sc.Column),
			Strength:    b.cfg.StatusWeight,
			Table:       sc.Table,
			Column:      sc.Column,
		})
	}

	for i := range signals.EntityChains {
		chain := signals.EntityChains[i]
		p := get(chain.Tables[0])
		if p.EntityChain == nil {
			p.EntityChain = &chain
		}
		for _, table := range chain.Tables {
			addTable(p, table)
		}
		p.AddEvidence(models.Evidence{
			SignalType:  models.SignalFKChain,
			Description: fmt.Sprintf("FK chain of %d tables for entity %q", len(chain.Tables), chain.EntityName),
			Strength:    b.cfg.TriggerWeight, // same tier as triggers
			Table:       chain.Tables[0],
		})
	}

	for _, ev := range signals.TriggerEvidence {
		p := get(ev.Table)
		// The detector reports 0.8 on status tables and 0.4 otherwise; the
		// contribution scales the configured trigger weight accordingly.
		scaled := ev
		scaled.Strength = b.cfg.TriggerWeight * (ev.Strength / 0.8)
		p.AddEvidence(scaled)
	}

	for i := range signals.TimestampSequences {
		ts := signals.TimestampSequences[i]
		p := get(ts.Table)
		p.AddEvidence(models.Evidence{
			SignalType:  models.SignalTimestampSequence,
			Description: fmt.Sprintf("%d timestamp columns form a lifecycle sequence", ts.Cardinality),
			Strength:    b.cfg.TimestampWeight,
			Table:       ts.Table,
			Column:      ts.Column,
		})
	}

	// Topology evidence: attach hub / star-fact / bridge signals when a
	// candidate's primary table qualifies in the graph stats.
	if stats != nil {
		for _, id := range order {
			p := candidates[id]
			primary := p.Tables[0]
			if stats.IsHub(primary) {
				p.AddEvidence(models.Evidence{
					SignalType:  models.SignalHubTable,
					Description: "table is a high-degree FK hub",
					Strength:    b.cfg.HubWeight,
					Table:       primary,
				})
			}
			if stats.IsStarFact(primary) {
				p.AddEvidence(models.Evidence{
					SignalType:  models.SignalStarSchemaFact,
					Description: "table is a star-schema fact table",
					Strength:    b.cfg.StarWeight,
					Table:       primary,
				})
			}
			if stats.IsBridge(primary) {
				p.AddEvidence(models.Evidence{
					SignalType:  models.SignalBridgeTable,
					Description: "table is a pure many-to-many bridge",
					Strength:    b.cfg.BridgeWeight,
					Table:       primary,
				})
			}
		}
	}

	// Minimum-evidence filter: a single weak signal is noise.
	var survivors []*models.DiscoveredProcess
	for _, id := range order {
		p := candidates[id]
		if p.Confidence >= b.cfg.MinConfidence || p.SignalTypeCount() >= b.cfg.MinSignalTypes {
			survivors = append(survivors, p)
			continue
		}
		b.logger.Debug("candidate filtered out",
			zap.String("id", p.ID),
			zap.Float64("confidence", p.Confidence),
			zap.Int("signal_types", p.SignalTypeCount()))
	}

	b.logger.Info("candidates built",
		zap.Int("raw", len(candidates)),
		zap.Int("surviving", len(survivors)))
	return survivors
}

// processDisplayName derives a human-readable process name from a table
// name: history/log suffixes stripped, singularized, title-cased.
func processDisplayName(table string) string {
	base := strings.ToLower(table)
	if suffix := historySuffix(base); suffix != "" {
		base = strings.TrimSuffix(base, suffix)
	}
	base = inflection.Singular(strings.ReplaceAll(base, "_", " "))
	words := strings.Fields(base)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Process"
}
