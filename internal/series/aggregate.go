package series

import "sort"

// Reshape narrows rows to a single metric key. An empty narrowTo returns an
// equal copy of rows (nil stays nil). Bucket order is preserved.
func Reshape(rows []MetricRow, narrowTo string) []MetricRow {
	if rows == nil {
		return nil
	}
	out := make([]MetricRow, 0, len(rows))
	for _, row := range rows {
		if narrowTo == "" {
			out = append(out, row.Clone())
			continue
		}
		out = append(out, MetricRow{
			Bucket: row.Bucket,
			Values: map[string]float64{narrowTo: Value(row, narrowTo)},
		})
	}
	return out
}

// Pick keeps only the listed keys of every row. Keys a row lacks stay absent.
// Bucket order is preserved and nil stays nil.
func Pick(rows []MetricRow, keys []string) []MetricRow {
	if rows == nil {
		return nil
	}
	out := make([]MetricRow, 0, len(rows))
	for _, row := range rows {
		picked := MetricRow{Bucket: row.Bucket, Values: make(map[string]float64, len(keys))}
		for _, k := range keys {
			if v, ok := row.Values[k]; ok {
				picked.Values[k] = v
			}
		}
		out = append(out, picked)
	}
	return out
}

// Sum adds every metric of every row. Values are added in ascending order so
// the total does not depend on row or key order.
func Sum(rows []MetricRow) float64 {
	var values []float64
	for _, row := range rows {
		for k := range row.Values {
			values = append(values, Value(row, k))
		}
	}
	return sumSorted(values)
}

// SumKey adds a single metric across rows.
func SumKey(rows []MetricRow, key string) float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		values = append(values, Value(row, key))
	}
	return sumSorted(values)
}

// Totals returns per-key sums.
func Totals(rows []MetricRow) map[string]float64 {
	out := make(map[string]float64)
	for _, key := range Keys(rows) {
		out[key] = SumKey(rows, key)
	}
	return out
}

// Ratio divides n by d and returns 0 when d is 0.
func Ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

// Percentage returns Sum(numerator) as a percentage of Sum(denominator), or 0
// when the denominator sums to 0.
func Percentage(numerator, denominator []MetricRow) float64 {
	return Ratio(Sum(numerator), Sum(denominator)) * 100
}

// Keys returns the sorted union of metric keys across rows.
func Keys(rows []MetricRow) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, row := range rows {
		for k := range row.Values {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sumSorted(values []float64) float64 {
	sort.Float64s(values)
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
