package models

import (
	"regexp"
	"strings"
)

// ============================================================================
// Signal Types
// ============================================================================

// SignalType identifies the detector that produced a piece of evidence.
type SignalType string

const (
	SignalStatusColumn      SignalType = "status_column"
	SignalTransitionTable   SignalType = "transition_table"
	SignalFKChain           SignalType = "fk_chain"
	SignalTimestampSequence SignalType = "timestamp_sequence"
	SignalTriggerOnStatus   SignalType = "trigger_on_status"
	SignalHubTable          SignalType = "hub_table"
	SignalStarSchemaFact    SignalType = "star_schema_fact"
	SignalBridgeTable       SignalType = "bridge_table"
)

// ValidSignalTypes contains all valid signal type values.
var ValidSignalTypes = []SignalType{
	SignalStatusColumn,
	SignalTransitionTable,
	SignalFKChain,
	SignalTimestampSequence,
	SignalTriggerOnStatus,
	SignalHubTable,
	SignalStarSchemaFact,
	SignalBridgeTable,
}

// Evidence is one atomic, typed, weighted signal supporting a process
// candidate. Evidence entries are append-only so the full justification
// trail stays inspectable after discovery.
type Evidence struct {
	SignalType  SignalType `json:"signal_type"`
	Description string     `json:"description"`
	Strength    float64    `json:"strength"` // 0.0 - 1.0
	Table       string     `json:"table"`
	Column      string     `json:"column,omitempty"`
}

// ============================================================================
// Detector Outputs
// ============================================================================

// Column roles assigned by the signal detectors.
const (
	RoleStatus    = "status"
	RoleTimestamp = "timestamp"
)

// ColumnCandidate is a column flagged as playing a role in some process.
type ColumnCandidate struct {
	Table          string   `json:"table"`
	Column         string   `json:"column"`
	Role           string   `json:"role"`
	DistinctValues []string `json:"distinct_values,omitempty"`
	Cardinality    int      `json:"cardinality,omitempty"`
	Confidence     float64  `json:"confidence"` // 0.0 - 1.0
}

// Transition is one observed (from, to, count) triple from a transition table.
type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
}

// TransitionPattern is a table believed to record state transitions.
// Transitions is populated in place during data enrichment.
type TransitionPattern struct {
	Table           string       `json:"table"`
	FromColumn      string       `json:"from_column"`
	ToColumn        string       `json:"to_column"`
	CountColumn     string       `json:"count_column,omitempty"`
	TimestampColumn string       `json:"timestamp_column,omitempty"`
	Transitions     []Transition `json:"transitions,omitempty"`
}

// EntityChain is an ordered list of tables connected by FK join keys that
// represent one logical entity's lifecycle.
type EntityChain struct {
	EntityName string   `json:"entity_name"` // table name with history/log/audit suffix stripped
	Tables     []string `json:"tables"`
	JoinKeys   []string `json:"join_keys,omitempty"`
}

// ============================================================================
// Discovered Process
// ============================================================================

// DiscoveredProcess is the central output entity of process discovery.
// It is created during candidate building, mutated during enrichment and
// AI labeling, and effectively immutable afterwards.
type DiscoveredProcess struct {
	ID          string   `json:"id"` // normalized from the primary table name
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tables      []string `json:"tables"`

	StatusColumn      *ColumnCandidate   `json:"status_column,omitempty"`
	TransitionPattern *TransitionPattern `json:"transition_pattern,omitempty"`
	EntityChain       *EntityChain       `json:"entity_chain,omitempty"`

	Stages      []string            `json:"stages,omitempty"`
	StageCounts map[string]int64    `json:"stage_counts,omitempty"`
	Branches    map[string][]string `json:"branches,omitempty"` // gateway stage -> alternative next stages

	// Duration-aware enrichment (populated when transition timestamps exist).
	StageDurations map[string]float64 `json:"stage_durations,omitempty"` // stage -> mean dwell seconds
	SlowestStage   string             `json:"slowest_stage,omitempty"`

	Evidence   []Evidence `json:"evidence"`
	Confidence float64    `json:"confidence"` // 0.0 - 1.0, capped

	// AI enrichment maps, stage -> display value. Absent until labeling runs.
	AILabels map[string]string `json:"ai_labels,omitempty"`
	AIColors map[string]string `json:"ai_colors,omitempty"`
	AIIcons  map[string]string `json:"ai_icons,omitempty"`
}

// AddEvidence appends a signal and accumulates its strength into the
// confidence score, capped at 1.0.
func (p *DiscoveredProcess) AddEvidence(ev Evidence) {
	p.Evidence = append(p.Evidence, ev)
	p.Confidence += ev.Strength
	if p.Confidence > 1.0 {
		p.Confidence = 1.0
	}
}

// SignalTypeCount returns the number of distinct signal types in the
// evidence list. Used by the candidate filter.
func (p *DiscoveredProcess) SignalTypeCount() int {
	seen := make(map[SignalType]struct{}, len(p.Evidence))
	for _, ev := range p.Evidence {
		seen[ev.SignalType] = struct{}{}
	}
	return len(seen)
}

// HasTable reports whether the process already involves the given table
// (case-insensitive).
func (p *DiscoveredProcess) HasTable(table string) bool {
	for _, t := range p.Tables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

var processIDCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeProcessID derives a stable lowercase, underscore-separated
// process id from a table name.
func NormalizeProcessID(table string) string {
	id := processIDCleaner.ReplaceAllString(strings.ToLower(table), "_")
	return strings.Trim(id, "_")
}
