package manifest

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

// nodeValue converts a YAML node into the structured value the codec reads.
// Numbers stay strings so that "mc: 1.20" is not read as the float 1.2.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			val, err := nodeValue(v)
			if err != nil {
				return nil, err
			}
			if k.ShortTag() == "!!merge" {
				if err := merge(out, val, k.Line); err != nil {
					return nil, err
				}
				continue
			}
			out[k.Value] = val
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return b, nil
		}
		return n.Value, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

// merge applies a "<<" key. Keys already present win.
func merge(dst map[string]any, src any, line int) error {
	var sources []any
	switch v := src.(type) {
	case map[string]any:
		sources = []any{v}
	case []any:
		sources = v
	default:
		return fmt.Errorf("line %d: merge value must be a mapping", line)
	}
	for _, s := range sources {
		m, ok := s.(map[string]any)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", line)
		}
		for k, v := range m {
			if _, exists := dst[k]; !exists {
				dst[k] = v
			}
		}
	}
	return nil
}

func parseYAML(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return nodeValue(&doc)
}
