package structured

// DeepMerge combines a freshly (partially) parsed JSON value into the
// previous partial value: objects are merged key-wise, arrays are
// replaced wholesale (never concatenated, since a later partial array is a
// superset re-parse of the same elements, not an appendix), and
// primitives are overwritten by the newer value.
func DeepMerge(previous, next interface{}) interface{} {
	if next == nil {
		return previous
	}
	prevMap, prevIsMap := previous.(map[string]interface{})
	nextMap, nextIsMap := next.(map[string]interface{})
	if prevIsMap && nextIsMap {
		merged := make(map[string]interface{}, len(prevMap)+len(nextMap))
		for k, v := range prevMap {
			merged[k] = v
		}
		for k, v := range nextMap {
			if existing, ok := merged[k]; ok {
				merged[k] = DeepMerge(existing, v)
			} else {
				merged[k] = v
			}
		}
		return merged
	}
	// Arrays and primitives: the newer parse wins outright.
	return next
}
