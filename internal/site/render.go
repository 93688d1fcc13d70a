package site

import (
	"strings"
	"text/template"

	"github.com/meta-pytorch/compile-graph-break-site/internal/manual"
	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
)

// NoHints replaces the hints list of a record that has none.
const NoHints = "*No hints provided.*"

// DefaultEditURL is the base of the "add Additional Info" link on detail pages.
const DefaultEditURL = "https://github.com/meta-pytorch/compile-graph-break-site/edit/main/docs/gb/"

// Field values are interpolated verbatim: registry text is already markdown.
var (
	detailTmpl = template.Must(template.New("detail").Parse(`---
layout: default
---
# {{.ID}}

## Graph-Break Type
*Short name describing what triggered the graph break*

{{.GbType}}

## Context
*Values or code snippet captured at the break point*

{{.Context}}

## Explanation
*Explanation of why the graph break was triggered*

{{.Explanation}}

## Hints
*Hints on how to resolve the graph break*

{{.Hints}}

{{.AdditionalInfo}}

[Click here to add Additional Info]({{.EditURL}})

[Back to Registry](../index.html)
`))

	indexTmpl = template.Must(template.New("index").Parse(`---
layout: default
---
Below are all known graph breaks detected by Dynamo.

{{range .}}- [{{.ID}}](gb/{{.Slug}}.html) — {{.GbType}}
{{end -}}
`))

	dashboardTmpl = template.Must(template.New("dashboard").Parse(`---
layout: default
title: Graph Break Dashboard
---

# Graph Break Metrics Dashboard

<div class="metric-container">
    <div class="metric-box">
        <h3>Total Graph Breaks</h3>
        <p>{{.Total}}</p>
    </div>
    <div class="metric-box">
        <h3>Graph Breaks with Additional Info</h3>
        <p>{{.WithAdditionalInfo}}</p>
    </div>
    <div class="metric-box">
        <h3>Graph Breaks with Missing Content</h3>
        <p>{{.WithMissingContent}}</p>
    </div>
</div>

`))
)

// Slug returns the file name stem for a GBID.
func Slug(id string) string {
	return strings.ToLower(id)
}

// DetailPath returns the path of a GBID's detail page relative to the site root.
func DetailPath(id string) string {
	return "gb/" + Slug(id) + ".md"
}

// Hints renders a hints list as markdown bullets, or NoHints when empty.
func Hints(hints []string) string {
	if len(hints) == 0 {
		return NoHints
	}
	lines := make([]string, len(hints))
	for i, h := range hints {
		lines[i] = "- " + h
	}
	return strings.Join(lines, "\n")
}

type detailData struct {
	ID             string
	GbType         string
	Context        string
	Explanation    string
	Hints          string
	AdditionalInfo string
	EditURL        string
}

// RenderDetail renders the detail page for e, embedding manualContent
// between the Additional Information markers.
func RenderDetail(e registry.Entry, manualContent, editURL string) (string, error) {
	rec := e.First()
	data := detailData{
		ID:             e.ID,
		GbType:         rec.GbType(),
		Context:        rec.ContextText(),
		Explanation:    rec.ExplanationText(),
		Hints:          Hints(rec.HintList()),
		AdditionalInfo: manual.Section(manualContent),
		EditURL:        editURL + Slug(e.ID) + ".md",
	}
	var b strings.Builder
	if err := detailTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

type indexLine struct {
	ID     string
	Slug   string
	GbType string
}

// RenderIndex renders the registry listing, one link per GBID in registry order.
func RenderIndex(reg *registry.Registry) (string, error) {
	lines := make([]indexLine, 0, reg.Len())
	for _, e := range reg.Entries() {
		lines = append(lines, indexLine{ID: e.ID, Slug: Slug(e.ID), GbType: e.First().GbType()})
	}
	var b strings.Builder
	if err := indexTmpl.Execute(&b, lines); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderDashboard renders the metrics dashboard.
func RenderDashboard(s Stats) (string, error) {
	var b strings.Builder
	if err := dashboardTmpl.Execute(&b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}
