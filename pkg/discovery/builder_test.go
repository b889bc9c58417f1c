package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

func newBuilder() *CandidateBuilder {
	return NewCandidateBuilder(config.Default().Discovery, zap.NewNop())
}

func TestBuildMergesSignalsOnSameTable(t *testing.T) {
	signals := Signals{
		StatusColumns: []models.ColumnCandidate{
			{Table: "orders", Column: "status", Role: models.RoleStatus, Confidence: 0.8},
		},
		TransitionPatterns: []models.TransitionPattern{
			{Table: "orders", FromColumn: "from_status", ToColumn: "to_status"},
		},
	}

	processes := newBuilder().Build(signals, nil)
	require.Len(t, processes, 1, "signals on one table merge into one candidate")

	p := processes[0]
	assert.Equal(t, "orders", p.ID)
	assert.InDelta(t, 0.50, p.Confidence, 0.001, "transition 0.30 + status 0.20")
	assert.Len(t, p.Evidence, 2)
	assert.NotNil(t, p.StatusColumn)
	assert.NotNil(t, p.TransitionPattern)
}

func TestBuildFiltersLoneWeakSignal(t *testing.T) {
	signals := Signals{
		TimestampSequences: []models.ColumnCandidate{
			{Table: "orders", Column: "created_at", Role: models.RoleTimestamp, Cardinality: 3},
		},
	}
	processes := newBuilder().Build(signals, nil)
	assert.Empty(t, processes, "a lone 0.05 timestamp signal is noise")
}

func TestBuildKeepsBorderlineSingleSignal(t *testing.T) {
	signals := Signals{
		TransitionPatterns: []models.TransitionPattern{
			{Table: "orders", FromColumn: "from_status", ToColumn: "to_status"},
		},
	}
	processes := newBuilder().Build(signals, nil)
	require.Len(t, processes, 1, "0.30 meets the confidence threshold alone")
	assert.InDelta(t, 0.30, processes[0].Confidence, 0.001)
}

func TestBuildKeepsWeakMultiSignalCandidate(t *testing.T) {
	signals := Signals{
		TimestampSequences: []models.ColumnCandidate{
			{Table: "orders", Column: "created_at", Role: models.RoleTimestamp, Cardinality: 3},
		},
		TriggerEvidence: []models.Evidence{
			{SignalType: models.SignalTriggerOnStatus, Table: "orders", Strength: 0.4},
		},
	}
	processes := newBuilder().Build(signals, nil)
	require.Len(t, processes, 1, "two distinct signal types survive below 0.30")
	assert.Less(t, processes[0].Confidence, 0.30)
	assert.Equal(t, 2, processes[0].SignalTypeCount())
}

func TestBuildScalesTriggerContribution(t *testing.T) {
	build := func(strength float64) float64 {
		signals := Signals{
			TransitionPatterns: []models.TransitionPattern{
				{Table: "orders", FromColumn: "from_status", ToColumn: "to_status"},
			},
			TriggerEvidence: []models.Evidence{
				{SignalType: models.SignalTriggerOnStatus, Table: "orders", Strength: strength},
			},
		}
		processes := newBuilder().Build(signals, nil)
		require.Len(t, processes, 1)
		return processes[0].Confidence
	}

	onStatus := build(0.8)
	offStatus := build(0.4)
	assert.InDelta(t, 0.45, onStatus, 0.001, "0.30 + full trigger weight 0.15")
	assert.InDelta(t, 0.375, offStatus, 0.001, "0.30 + half trigger weight")
}

func TestBuildWeightOrderingInvariant(t *testing.T) {
	cfg := config.Default().Discovery
	assert.Greater(t, cfg.TransitionWeight, cfg.StatusWeight)
	assert.Greater(t, cfg.StatusWeight, cfg.TriggerWeight)
	assert.Greater(t, cfg.TriggerWeight, cfg.HubWeight)
	assert.GreaterOrEqual(t, cfg.HubWeight, cfg.StarWeight)
	assert.Greater(t, cfg.StarWeight, cfg.BridgeWeight)
	assert.Greater(t, cfg.BridgeWeight, cfg.TimestampWeight)
}

func TestBuildChainCandidateUnionsTables(t *testing.T) {
	signals := Signals{
		EntityChains: []models.EntityChain{
			{EntityName: "order", Tables: []string{"ORDERS_HISTORY", "ORDERS", "CUSTOMERS"}},
		},
		StatusColumns: []models.ColumnCandidate{
			{Table: "orders_history", Column: "status", Role: models.RoleStatus, Confidence: 0.8},
		},
	}
	processes := newBuilder().Build(signals, nil)
	require.Len(t, processes, 1)
	assert.ElementsMatch(t, []string{"ORDERS_HISTORY", "ORDERS", "CUSTOMERS"}, processes[0].Tables)
	assert.NotNil(t, processes[0].EntityChain)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"orders", "Order Process"},
		{"order_status_history", "Order Status Process"},
		{"support_tickets", "Support Ticket Process"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, processDisplayName(tt.table))
	}
}
