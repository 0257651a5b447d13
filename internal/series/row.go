// Package series reshapes per-period metric rows into chart-ready data.
//
// Rows are sparse: a key absent from a row reads as zero. That rule lives in
// Value and every other function here goes through it.
package series

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// BucketField is the JSON name of the x-axis label.
const BucketField = "bucketLabel"

// MetricRow is one x-axis bucket with additive numeric metrics keyed by name
// (usually an entity id).
type MetricRow struct {
	Bucket string
	Values map[string]float64
}

// Row builds a MetricRow from alternating key/value pairs.
func Row(bucket string, kv ...any) MetricRow {
	row := MetricRow{Bucket: bucket, Values: make(map[string]float64, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if v, ok := toFloat(kv[i+1]); ok {
			row.Values[key] = v
		}
	}
	return row
}

// Value returns the metric stored under key, or 0 when the key is missing or
// not a finite number.
func Value(row MetricRow, key string) float64 {
	v, ok := row.Values[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Clone returns a deep copy.
func (r MetricRow) Clone() MetricRow {
	out := MetricRow{Bucket: r.Bucket}
	if r.Values == nil {
		return out
	}
	out.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

func (r MetricRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Values)+1)
	for k := range r.Values {
		flat[k] = Value(r, k)
	}
	flat[BucketField] = r.Bucket
	return json.Marshal(flat)
}

// UnmarshalJSON accepts the flat backend shape. Non-numeric fields other than
// the bucket label are ignored.
func (r *MetricRow) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	row := MetricRow{Values: make(map[string]float64, len(raw))}
	for k, v := range raw {
		if k == BucketField {
			label, ok := v.(string)
			if !ok {
				return fmt.Errorf("series: %s must be a string, got %T", BucketField, v)
			}
			row.Bucket = label
			continue
		}
		if f, ok := toFloat(v); ok {
			row.Values[k] = f
		}
	}
	*r = row
	return nil
}

// FromMaps converts generic decoded maps (e.g. from an RPC payload) into rows.
func FromMaps(items []map[string]any) []MetricRow {
	rows := make([]MetricRow, 0, len(items))
	for _, item := range items {
		row := MetricRow{Values: make(map[string]float64, len(item))}
		for k, v := range item {
			if k == BucketField {
				row.Bucket, _ = v.(string)
				continue
			}
			if f, ok := toFloat(v); ok {
				row.Values[k] = f
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ToMaps is the inverse of FromMaps.
func ToMaps(rows []MetricRow) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(row.Values)+1)
		for k := range row.Values {
			m[k] = Value(row, k)
		}
		m[BucketField] = row.Bucket
		out = append(out, m)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
