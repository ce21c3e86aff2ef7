package domain

import "maps"

// MergeLayers combines layers into a new map, later layers taking precedence.
// Nested objects are merged recursively; no input is modified.
func MergeLayers(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		mergeInto(out, layer)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			merged := maps.Clone(dstMap)
			mergeInto(merged, srcMap)
			dst[k] = merged
			continue
		}
		cp := make(map[string]any, len(srcMap))
		mergeInto(cp, srcMap)
		dst[k] = cp
	}
}
