package graph

// String returns r[key] as a string, or "" if absent or not a string.
func String(r Record, key string) string {
	s, _ := r[key].(string)
	return s
}

// Float returns r[key] as a float64, accepting any numeric type the driver returns.
func Float(r Record, key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Int returns r[key] as an int.
func Int(r Record, key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns r[key] as a bool.
func Bool(r Record, key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Strings returns r[key] as a string slice, dropping non-string and empty elements.
func Strings(r Record, key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Float32s returns r[key] as a float32 vector.
func Float32s(r Record, key string) []float32 {
	switch v := r[key].(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, e := range v {
			switch f := e.(type) {
			case float64:
				out = append(out, float32(f))
			case int64:
				out = append(out, float32(f))
			}
		}
		return out
	}
	return nil
}
