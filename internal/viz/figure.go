// Package viz turns result rows plus a model-produced chart spec into a
// renderable figure description (plotly-style traces and layout).
package viz

import (
	"fmt"
	"strings"
)

type ChartSpec struct {
	Type  string `json:"type"`
	X     string `json:"x"`
	Y     string `json:"y,omitempty"`
	Title string `json:"title,omitempty"`
}

type Trace struct {
	Type   string `json:"type"`
	Mode   string `json:"mode,omitempty"`
	X      []any  `json:"x,omitempty"`
	Y      []any  `json:"y,omitempty"`
	Labels []any  `json:"labels,omitempty"`
	Values []any  `json:"values,omitempty"`
}

type Layout struct {
	Title    string `json:"title"`
	Template string `json:"template"`
}

type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// RenderingError means the figure cannot be built from the given rows
// and spec. Callers degrade to a null figure; they never emit a partial
// chart.
type RenderingError struct {
	Reason string
}

func (e *RenderingError) Error() string {
	return "figure unavailable: " + e.Reason
}

var supportedTypes = map[string]struct{}{
	"bar":     {},
	"line":    {},
	"scatter": {},
	"pie":     {},
}

// Build maps rows into the fields named by the spec. It fails rather
// than fabricating data: empty rows, an unsupported chart type, a
// missing mapping, or a mapped column absent from the result set are
// all rendering errors.
func Build(rows []map[string]any, spec *ChartSpec) (*Figure, error) {
	if spec == nil {
		return nil, &RenderingError{Reason: "chart spec is missing"}
	}
	if len(rows) == 0 {
		return nil, &RenderingError{Reason: "query returned no rows to plot"}
	}

	chartType := strings.ToLower(strings.TrimSpace(spec.Type))
	if chartType == "" {
		chartType = "bar"
	}
	if _, ok := supportedTypes[chartType]; !ok {
		return nil, &RenderingError{Reason: fmt.Sprintf("unsupported chart type %q", spec.Type)}
	}
	if spec.X == "" {
		return nil, &RenderingError{Reason: "chart spec missing x mapping"}
	}
	// Pie needs a values column as much as the axis types do; charting
	// the label column against itself would fabricate data.
	if spec.Y == "" {
		return nil, &RenderingError{Reason: "chart spec missing y mapping"}
	}

	xValues, err := column(rows, spec.X)
	if err != nil {
		return nil, err
	}
	yValues, err := column(rows, spec.Y)
	if err != nil {
		return nil, err
	}

	var trace Trace
	switch chartType {
	case "bar":
		trace = Trace{Type: "bar", X: xValues, Y: yValues}
	case "line":
		trace = Trace{Type: "scatter", Mode: "lines", X: xValues, Y: yValues}
	case "scatter":
		trace = Trace{Type: "scatter", Mode: "markers", X: xValues, Y: yValues}
	case "pie":
		trace = Trace{Type: "pie", Labels: xValues, Values: yValues}
	}

	title := spec.Title
	if title == "" {
		title = "Visualization"
	}

	return &Figure{
		Data:   []Trace{trace},
		Layout: Layout{Title: title, Template: "plotly_white"},
	}, nil
}

func column(rows []map[string]any, name string) ([]any, error) {
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		value, ok := row[name]
		if !ok {
			return nil, &RenderingError{Reason: fmt.Sprintf("chart column %q not in result set", name)}
		}
		values = append(values, value)
	}
	return values, nil
}
