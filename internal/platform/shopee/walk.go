package shopee

import "sort"

// Shopee's mobile API nests the interesting fields differently between app
// versions; the walkers below search the decoded JSON breadth-first instead of
// pinning a path. Sibling keys are visited in sorted order, so the same
// payload always yields the same result order.

// FindFirstKey returns the value of the first occurrence of key in a nested
// structure of maps and slices, or nil.
func FindFirstKey(data interface{}, key string) interface{} {
	queue := []interface{}{data}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		switch v := cur.(type) {
		case map[string]interface{}:
			if val, ok := v[key]; ok {
				return val
			}
			for _, k := range sortedKeys(v) {
				switch child := v[k]; child.(type) {
				case map[string]interface{}, []interface{}:
					queue = append(queue, child)
				}
			}
		case []interface{}:
			for _, child := range v {
				switch child.(type) {
				case map[string]interface{}, []interface{}:
					queue = append(queue, child)
				}
			}
		}
	}
	return nil
}

// ValuesByKey collects every value stored under any of the target keys,
// in breadth-first encounter order.
func ValuesByKey(data interface{}, keys ...string) []interface{} {
	target := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		target[k] = struct{}{}
	}

	var out []interface{}
	queue := []interface{}{data}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		switch v := cur.(type) {
		case map[string]interface{}:
			for _, k := range sortedKeys(v) {
				val := v[k]
				if _, ok := target[k]; ok {
					out = append(out, val)
				}
				switch val.(type) {
				case map[string]interface{}, []interface{}:
					queue = append(queue, val)
				}
			}
		case []interface{}:
			queue = append(queue, v...)
		}
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
