package httpclient

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// JSONFields returns a handler that reads one number per path from a JSON
// response body. Paths use gjson syntax; a leading "$." is accepted. A path
// that is missing or not numeric yields 0 so every row has the same width.
func JSONFields(paths ...string) ResponseHandler {
	if len(paths) == 0 {
		return nil
	}
	normalized := make([]string, len(paths))
	for i, p := range paths {
		normalized[i] = normalizePath(p)
	}
	return func(_ *http.Response, body []byte) []float64 {
		fields := make([]float64, len(normalized))
		for i, path := range normalized {
			result := gjson.GetBytes(body, path)
			if result.Exists() {
				fields[i] = result.Float()
			}
		}
		return fields
	}
}

func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}
