package conf

// Namespace prefixes every key of the given maps with ns and merges
// them into one map. Later maps override earlier ones. An empty ns
// leaves the keys unchanged.
func Namespace[M ~map[string]V, V any](ns string, maps ...M) M {
	fullCap := 0
	for _, m := range maps {
		fullCap += len(m)
	}

	merged := make(M, fullCap)
	for _, m := range maps {
		for key, val := range m {
			if ns != "" {
				key = ns + "." + key
			}
			merged[key] = val
		}
	}

	return merged
}
