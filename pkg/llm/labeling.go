package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Labeler asks the model for human-friendly names, descriptions, stage
// labels, colors and icons for discovered processes. Every part of the
// exchange is best-effort: a timeout, HTTP error or malformed response
// leaves the processes exactly as they were.
type Labeler struct {
	client *Client
	logger *zap.Logger
}

// NewLabeler creates a process labeler.
func NewLabeler(client *Client, logger *zap.Logger) *Labeler {
	return &Labeler{client: client, logger: logger.Named("process-labeler")}
}

// processLabeling is one candidate's labeling block in the model response.
// Every field is optional; stages may arrive as non-string JSON values.
type processLabeling struct {
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Stages      []json.RawMessage   `json:"stages,omitempty"`
	Branches    map[string][]string `json:"branches,omitempty"`
	Labels      map[string]string   `json:"labels,omitempty"`
	Colors      map[string]string   `json:"colors,omitempty"`
	Icons       map[string]string   `json:"icons,omitempty"`
}

// LabelProcesses requests labeling for all processes and applies whatever
// usable fields come back. It never returns an error to the caller; the
// worst outcome is unchanged processes.
func (l *Labeler) LabelProcesses(ctx context.Context, schemaDDL string, processes []*models.DiscoveredProcess) {
	if len(processes) == 0 {
		return
	}

	response, err := l.client.Generate(ctx, buildLabelingPrompt(schemaDDL, processes))
	if err != nil {
		l.logger.Warn("labeling call failed, keeping derived names", zap.Error(err))
		return
	}

	labelings, err := ParseJSONResponse[map[string]processLabeling](response)
	if err != nil {
		l.logger.Warn("labeling response unparseable, keeping derived names", zap.Error(err))
		return
	}

	for _, p := range processes {
		labeling, ok := labelings[p.ID]
		if !ok {
			continue
		}
		applyLabeling(p, &labeling)
	}
}

// applyLabeling merges one labeling block into a process. Absent fields
// leave the existing values untouched.
func applyLabeling(p *models.DiscoveredProcess, labeling *processLabeling) {
	if labeling.Name != "" {
		p.Name = labeling.Name
	}
	if labeling.Description != "" {
		p.Description = labeling.Description
	}
	if stages := coerceStages(labeling.Stages); len(stages) > 0 {
		p.Stages = stages
	}
	if len(labeling.Branches) > 0 {
		p.Branches = labeling.Branches
	}
	if len(labeling.Labels) > 0 {
		p.AILabels = labeling.Labels
	}
	if len(labeling.Colors) > 0 {
		p.AIColors = labeling.Colors
	}
	if len(labeling.Icons) > 0 {
		p.AIIcons = labeling.Icons
	}
}

// coerceStages converts raw JSON stage entries to strings. Models sometimes
// emit numbers or objects in the stage list; numbers become their literal
// text, anything unusable is skipped.
func coerceStages(raw []json.RawMessage) []string {
	var stages []string
	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			stages = append(stages, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(entry, &n); err == nil {
			stages = append(stages, n.String())
		}
	}
	return stages
}

// buildLabelingPrompt renders the schema DDL and candidate digests into the
// labeling request.
func buildLabelingPrompt(schemaDDL string, processes []*models.DiscoveredProcess) string {
	var b strings.Builder
	b.WriteString("You are labeling business processes discovered in a relational schema.\n")
	b.WriteString("Schema DDL:\n")
	b.WriteString(schemaDDL)
	b.WriteString("\n\nDiscovered processes:\n")
	for _, p := range processes {
		fmt.Fprintf(&b, "- id: %s\n  tables: %s\n  stages: %s\n",
			p.ID, strings.Join(p.Tables, ", "), strings.Join(p.Stages, " -> "))
		if len(p.StageCounts) > 0 {
			fmt.Fprintf(&b, "  stage_counts: %v\n", p.StageCounts)
		}
		if len(p.Branches) > 0 {
			fmt.Fprintf(&b, "  branches: %v\n", p.Branches)
		}
	}
	b.WriteString("\nRespond with one JSON object keyed by process id. Each value may contain: ")
	b.WriteString(`"name", "description", "stages" (ordered), "branches", and per-stage "labels", "colors", "icons".`)
	b.WriteString(" Omit anything you are not sure about.\n")
	return b.String()
}
