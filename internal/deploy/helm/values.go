package helm

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// Values represents helm chart values as a map.
type Values map[string]any

// Merge deep-merges value maps. Later maps win; nested maps are merged
// key by key and every other value, lists included, is replaced.
func Merge(valueMaps ...Values) Values {
	result := Values{}
	for _, m := range valueMaps {
		mergeInto(result, m)
	}
	return result
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		dstMap, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			merged := maps.Clone(dstMap)
			mergeInto(merged, srcMap)
			dst[k] = merged
			continue
		}
		if srcIsMap {
			cp := map[string]any{}
			mergeInto(cp, srcMap)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Values:
		return map[string]any(m), true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// Set assigns v at a dotted path such as "controller.service.loadBalancerIP",
// creating intermediate maps.
func Set(path string, v any) Values {
	keys := strings.Split(path, ".")
	out := Values{}
	cur := map[string]any(out)
	for _, k := range keys[:len(keys)-1] {
		next := map[string]any{}
		cur[k] = next
		cur = next
	}
	cur[keys[len(keys)-1]] = v
	return out
}

// Lookup returns the value at a dotted path.
func (v Values) Lookup(path string) (any, bool) {
	var cur any = map[string]any(v)
	for _, k := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// FromYAML parses YAML bytes into Values.
func FromYAML(data []byte) (Values, error) {
	values := Values{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse YAML values: %w", err)
	}
	return values, nil
}

// ReadFiles reads and merges values files in order.
func ReadFiles(paths ...string) (Values, error) {
	layers := make([]Values, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read values file: %w", err)
		}
		v, err := FromYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		layers = append(layers, v)
	}
	return Merge(layers...), nil
}

// Equal compares values by their JSON encoding, so numeric types that
// decode differently still compare equal.
func Equal(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
