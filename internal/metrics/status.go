package metrics

import "sort"

// StatusBucket is the number of responses seen for one status code.
type StatusBucket struct {
	Code  string
	Count int
}

// FlattenStatusCodes converts a status->count map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by code for stability.
func FlattenStatusCodes(codes map[string]int) []StatusBucket {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, StatusBucket{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
