package report

import (
	"encoding/json"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/graftlab/graft/pkg/common"
)

// TypeCount is one row of a per-type breakdown.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EntityDegree names an entity together with the number of relationships
// it participates in.
type EntityDegree struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Degree int    `json:"degree"`
}

// Report is a point-in-time summary of a fused knowledge graph.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`

	EntitiesByType      []TypeCount `json:"entities_by_type"`
	RelationshipsByType []TypeCount `json:"relationships_by_type"`

	TopEntities []EntityDegree `json:"top_entities"`

	Summaries []string `json:"summaries,omitempty"`
}

const topEntityLimit = 10

// Build derives a report from a graph snapshot. Summaries are the
// fragment summaries that contributed to the graph, in merge order.
func Build(graph *common.KnowledgeGraph, summaries []string) Report {
	r := Report{
		GeneratedAt: time.Now().UTC(),
		Summaries:   summaries,
	}
	if graph == nil {
		return r
	}

	r.EntityCount = len(graph.Entities)
	r.RelationshipCount = len(graph.Relationships)

	entityTypes := map[string]int{}
	for _, e := range graph.Entities {
		entityTypes[typeOrUnknown(e.Type)]++
	}
	r.EntitiesByType = sortedCounts(entityTypes)

	relTypes := map[string]int{}
	degrees := map[string]int{}
	for _, rel := range graph.Relationships {
		relTypes[typeOrUnknown(rel.Type)]++
		degrees[rel.Source]++
		degrees[rel.Target]++
	}
	r.RelationshipsByType = sortedCounts(relTypes)

	for _, e := range graph.Entities {
		if d := degrees[e.ID]; d > 0 {
			r.TopEntities = append(r.TopEntities, EntityDegree{
				ID:     e.ID,
				Name:   e.Name,
				Type:   e.Type,
				Degree: d,
			})
		}
	}
	sort.Slice(r.TopEntities, func(i, j int) bool {
		if r.TopEntities[i].Degree != r.TopEntities[j].Degree {
			return r.TopEntities[i].Degree > r.TopEntities[j].Degree
		}
		return r.TopEntities[i].ID < r.TopEntities[j].ID
	})
	if len(r.TopEntities) > topEntityLimit {
		r.TopEntities = r.TopEntities[:topEntityLimit]
	}

	return r
}

func typeOrUnknown(t string) string {
	if strings.TrimSpace(t) == "" {
		return "unknown"
	}
	return t
}

func sortedCounts(counts map[string]int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

var markdownTemplate = template.Must(template.New("report").Parse(`# Knowledge Graph Report

Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}

## Overview

- Entities: {{.EntityCount}}
- Relationships: {{.RelationshipCount}}

## Entities by Type
{{range .EntitiesByType}}
- {{.Type}}: {{.Count}}{{else}}
(none)
{{end}}

## Relationships by Type
{{range .RelationshipsByType}}
- {{.Type}}: {{.Count}}{{else}}
(none)
{{end}}

## Most Connected Entities
{{range .TopEntities}}
- {{.Name}} ({{.Type}}): {{.Degree}} relationships{{else}}
(none)
{{end}}
{{if .Summaries}}
## Document Summaries
{{range .Summaries}}
- {{.}}
{{end}}{{end}}`))

// Markdown renders the report as a Markdown document.
func (r Report) Markdown() ([]byte, error) {
	var sb strings.Builder
	if err := markdownTemplate.Execute(&sb, r); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
