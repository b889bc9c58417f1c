package discovery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/lumina-bi/lumina-engine/pkg/graph"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// The detectors are stateless scans over table metadata. Each one runs over
// the full table list; truncating the input silently loses processes.

// ============================================================================
// Pattern tables
// ============================================================================

var statusKeywords = []string{"status", "state", "stage", "step", "phase"}

// statusExactPattern matches a column named exactly like a status keyword.
var statusExactPattern = regexp.MustCompile(`(?i)^(status|state|stage|step|phase)$`)

// statusPartialPattern matches derivative names such as order_status or
// workflow_state.
var statusPartialPattern = regexp.MustCompile(`(?i)(status|state|stage|step|phase)`)

// stringLikeTypes restricts status detection to textual declared types.
var stringLikeTypes = []string{"char", "text", "string", "enum", "clob"}

// transitionPrefixPairs are the column-name conventions that mark a
// from/to transition pair, matched by common suffix.
var transitionPrefixPairs = [][2]string{
	{"from_", "to_"},
	{"old_", "new_"},
	{"prev_", "next_"},
	{"source_", "target_"},
}

// historySuffixes mark tables recording an entity's lifecycle.
var historySuffixes = []string{"_history", "_log", "_audit", "_changelog", "_transitions"}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)_at$`),
	regexp.MustCompile(`(?i)_date$`),
	regexp.MustCompile(`(?i)_time$`),
	regexp.MustCompile(`(?i)_on$`),
	regexp.MustCompile(`(?i)^(created|updated|modified|deleted|completed|started|finished)`),
	regexp.MustCompile(`(?i)timestamp`),
}

var countPattern = regexp.MustCompile(`(?i)(count|total|cnt)`)

func isStringLike(dataType string) bool {
	dt := strings.ToLower(dataType)
	for _, s := range stringLikeTypes {
		if strings.Contains(dt, s) {
			return true
		}
	}
	return false
}

func isTimestampName(name string) bool {
	for _, p := range timestampPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// historySuffix returns the matched lifecycle suffix of a table name, or "".
func historySuffix(table string) string {
	lower := strings.ToLower(table)
	for _, suffix := range historySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return suffix
		}
	}
	return ""
}

// isStatusLikeColumn reports whether a column looks like a status column at
// all, regardless of strength. Used by the trigger detector.
func isStatusLikeColumn(col *models.ColumnInfo) bool {
	return isStringLike(col.DataType) && statusPartialPattern.MatchString(col.Name)
}

// ============================================================================
// Status-column detector
// ============================================================================

// DetectStatusColumns flags string-typed columns whose names match the
// status keyword patterns. Exact whole-name matches score 0.8, partial
// matches 0.5.
func DetectStatusColumns(tables []models.TableInfo) []models.ColumnCandidate {
	var candidates []models.ColumnCandidate
	for i := range tables {
		t := &tables[i]
		for j := range t.Columns {
			col := &t.Columns[j]
			if !isStringLike(col.DataType) {
				continue
			}
			var confidence float64
			switch {
			case statusExactPattern.MatchString(col.Name):
				confidence = 0.8
			case statusPartialPattern.MatchString(col.Name):
				confidence = 0.5
			default:
				continue
			}
			candidates = append(candidates, models.ColumnCandidate{
				Table:      t.Name,
				Column:     col.Name,
				Role:       models.RoleStatus,
				Confidence: confidence,
			})
		}
	}
	return candidates
}

// ============================================================================
// Transition-table detector
// ============================================================================

// DetectTransitionTables scans column-name pairs under the known prefix
// conventions. A pair only counts when both sides are present with the same
// suffix; a count column and a timestamp column are attached when found.
func DetectTransitionTables(tables []models.TableInfo) []models.TransitionPattern {
	var patterns []models.TransitionPattern
	for i := range tables {
		t := &tables[i]
		names := make(map[string]string, len(t.Columns)) // lower -> original
		for _, col := range t.Columns {
			names[strings.ToLower(col.Name)] = col.Name
		}

		for _, pair := range transitionPrefixPairs {
			fromPrefix, toPrefix := pair[0], pair[1]
			for _, col := range t.Columns {
				lower := strings.ToLower(col.Name)
				if !strings.HasPrefix(lower, fromPrefix) {
					continue
				}
				suffix := strings.TrimPrefix(lower, fromPrefix)
				toCol, ok := names[toPrefix+suffix]
				if !ok {
					continue
				}
				p := models.TransitionPattern{
					Table:      t.Name,
					FromColumn: col.Name,
					ToColumn:   toCol,
				}
				for _, other := range t.Columns {
					if p.CountColumn == "" && countPattern.MatchString(other.Name) {
						p.CountColumn = other.Name
					}
					if p.TimestampColumn == "" && isTimestampName(other.Name) {
						p.TimestampColumn = other.Name
					}
				}
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

// ============================================================================
// FK-chain detector (graph-driven)
// ============================================================================

// fkChainMaxHops bounds how far a lifecycle chain is followed.
const fkChainMaxHops = 5

// DetectFKChains builds entity chains for every history/log/audit-suffixed
// table by following its outgoing FK edges through the schema graph. The
// entity name is the table name with the suffix stripped and singularized.
func DetectFKChains(tables []models.TableInfo, g *graph.SchemaGraph) []models.EntityChain {
	var chains []models.EntityChain
	for i := range tables {
		t := &tables[i]
		suffix := historySuffix(t.Name)
		if suffix == "" {
			continue
		}

		entity := strings.TrimSuffix(strings.ToLower(t.Name), suffix)
		entity = inflection.Singular(strings.ReplaceAll(entity, "_", " "))

		chain := models.EntityChain{
			EntityName: entity,
			Tables:     []string{strings.ToUpper(t.Name)},
		}
		visited := map[string]bool{strings.ToUpper(t.Name): true}
		current := t.Name
		for hop := 0; hop < fkChainMaxHops; hop++ {
			edges := g.GetFKNeighbors(current)
			advanced := false
			for _, e := range edges {
				if visited[e.TargetTable] {
					continue
				}
				visited[e.TargetTable] = true
				chain.Tables = append(chain.Tables, e.TargetTable)
				chain.JoinKeys = append(chain.JoinKeys, e.SourceColumn)
				current = e.TargetTable
				advanced = true
				break
			}
			if !advanced {
				break
			}
		}
		if len(chain.Tables) > 1 {
			chains = append(chains, chain)
		}
	}
	return chains
}

// ============================================================================
// Timestamp-sequence detector
// ============================================================================

// timestampSequenceMin is the column count at which a table reads as a
// timestamped lifecycle (created/shipped/delivered and so on).
const timestampSequenceMin = 3

// DetectTimestampSequences flags tables with at least three
// timestamp-named columns. Cardinality records how many columns matched.
func DetectTimestampSequences(tables []models.TableInfo) []models.ColumnCandidate {
	var candidates []models.ColumnCandidate
	for i := range tables {
		t := &tables[i]
		var matched []string
		for _, col := range t.Columns {
			if isTimestampName(col.Name) {
				matched = append(matched, col.Name)
			}
		}
		if len(matched) < timestampSequenceMin {
			continue
		}
		candidates = append(candidates, models.ColumnCandidate{
			Table:       t.Name,
			Column:      matched[0],
			Role:        models.RoleTimestamp,
			Cardinality: len(matched),
			Confidence:  0.5,
		})
	}
	return candidates
}

// ============================================================================
// Trigger-signal detector
// ============================================================================

// DetectTriggerSignals emits evidence for every trigger in the snapshot:
// strength 0.8 when the trigger's table has a status-like column, 0.4
// otherwise.
func DetectTriggerSignals(snapshot *models.SchemaSnapshot) []models.Evidence {
	var evidence []models.Evidence
	for _, trigger := range snapshot.Triggers {
		table := snapshot.TableByKey(trigger.TableName)
		strength := 0.4
		column := ""
		if table != nil {
			for i := range table.Columns {
				if isStatusLikeColumn(&table.Columns[i]) {
					strength = 0.8
					column = table.Columns[i].Name
					break
				}
			}
		}
		evidence = append(evidence, models.Evidence{
			SignalType:  models.SignalTriggerOnStatus,
			Description: fmt.Sprintf("trigger %s fires on %s", trigger.Name, trigger.TableName),
			Strength:    strength,
			Table:       trigger.TableName,
			Column:      column,
		})
	}
	return evidence
}
