package series

// Line is one plotted series; Values align with Chart.Buckets.
type Line struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Chart is the x-axis plus one line per metric key.
type Chart struct {
	Buckets []string `json:"buckets"`
	Lines   []Line   `json:"lines"`
}

// BuildChart pivots rows into lines, one per key in sorted order. Missing
// values plot as 0.
func BuildChart(rows []MetricRow) Chart {
	chart := Chart{Buckets: make([]string, 0, len(rows))}
	for _, row := range rows {
		chart.Buckets = append(chart.Buckets, row.Bucket)
	}
	for _, key := range Keys(rows) {
		line := Line{Name: key, Values: make([]float64, 0, len(rows))}
		for _, row := range rows {
			line.Values = append(line.Values, Value(row, key))
		}
		chart.Lines = append(chart.Lines, line)
	}
	return chart
}
