package doc

// Merge deep-merges src into dst and reports whether dst changed.
//
// For a key present in both, when both values are plain mappings the merge
// recurses; otherwise the src value wins outright. Arrays and scalars are
// replaced, never merged element-wise. Values copied from src are cloned so
// later changes to src do not leak into dst.
func Merge(dst, src Data) bool {
	changed := false
	for k, sv := range src {
		dv, present := dst[k]
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dv.(map[string]any)
		if srcIsMap && dstIsMap {
			if Merge(dm, sm) {
				changed = true
			}
			continue
		}
		if present && Equal(dv, sv) {
			continue
		}
		dst[k] = Clone(sv)
		changed = true
	}
	return changed
}

// Compose deep-merges layers ordered from most general to most specific into
// a fresh mapping. Later layers win on conflicts; keys only an earlier layer
// declares are kept.
func Compose(layers ...Data) Data {
	out := Data{}
	for _, layer := range layers {
		Merge(out, layer)
	}
	return out
}

// Overlay assigns the keys of each layer, most general first, onto a fresh
// mapping. Unlike Compose it does not recurse: a specific layer's value for
// a key replaces the general one wholesale.
func Overlay(layers ...Data) Data {
	out := Data{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = Clone(v)
		}
	}
	return out
}
