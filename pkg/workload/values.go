package workload

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/pkg/reactive"
)

const (
	refPrefix      = "ref:"
	computedPrefix = "computed:"

	// rootSource addresses the whole state tree.
	rootSource = "state"
)

// nodeValue converts a YAML node into raw holders, keeping mapping order.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		obj := reactive.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(n.Content[i].Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		items := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return reactive.NewArray(items...), nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, invalid("line %d: %v", n.Line, err)
		}
		return v, nil
	}
	return nil, nil
}

// plainValue converts decoded YAML values into raw holders. Map keys are
// inserted in sorted order.
func plainValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		obj := reactive.NewObject()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj.Set(k, plainValue(x[k]))
		}
		return obj
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = plainValue(item)
		}
		return reactive.NewArray(items...)
	}
	return v
}

func plainValues(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = plainValue(v)
	}
	return out
}

// formatValue renders a value for traces. Containers are rendered from
// their raw holders, so formatting never records dependencies.
func formatValue(v any) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	v = reactive.ToRaw(v)
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(x))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case reactive.Reference:
		writeValue(b, reactive.Unref(x))
	case *reactive.Array:
		writeList(b, x.Items())
	case []any:
		writeList(b, x)
	case reactive.Container:
		b.WriteByte('{')
		for i, k := range x.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprint(b, k)
			b.WriteString(": ")
			writeValue(b, x.Get(k))
		}
		b.WriteByte('}')
	default:
		fmt.Fprint(b, x)
	}
}

func writeList(b *strings.Builder, items []any) {
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		writeValue(b, item)
	}
	b.WriteByte(']')
}

// splitPath splits a dotted path into segments.
func splitPath(path string) []string {
	if path == "" || path == rootSource {
		return nil
	}
	return strings.Split(path, ".")
}

// keyFor converts a path segment into a key of c. Array segments are
// indexes or "length".
func keyFor(c reactive.Container, segment string) any {
	if _, ok := reactive.ToRaw(c).(*reactive.Array); !ok {
		return segment
	}
	if segment == string(reactive.LengthKey) {
		return reactive.LengthKey
	}
	if i, err := strconv.Atoi(segment); err == nil {
		return i
	}
	return segment
}

// lookup reads path from root through the observable views, so reads made
// inside an effect are tracked.
func lookup(root reactive.Container, path string) any {
	var cur any = root
	for _, seg := range splitPath(path) {
		c, ok := cur.(reactive.Container)
		if !ok {
			return nil
		}
		cur = c.Get(keyFor(c, seg))
	}
	return cur
}

// parent resolves every segment of path but the last, returning the
// container holding it and the key within it.
func parent(root reactive.Container, path string) (reactive.Container, any, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, nil, invalid("path %q does not name a field", path)
	}
	holder := lookup(root, strings.Join(segs[:len(segs)-1], "."))
	c, ok := holder.(reactive.Container)
	if !ok {
		return nil, nil, invalid("path %q: parent is %s, not an object or array", path, formatValue(holder))
	}
	return c, keyFor(c, segs[len(segs)-1]), nil
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// sumItems adds the numeric entries of c. The result is an int when every
// entry is an integer.
func sumItems(c reactive.Container) any {
	var (
		total   float64
		integer = true
	)
	for _, k := range c.Keys() {
		v := c.Get(k)
		n, ok := toNumber(v)
		if !ok {
			continue
		}
		if _, isFloat := v.(float64); isFloat {
			integer = false
		}
		total += n
	}
	if integer {
		return int(total)
	}
	return total
}

func joinItems(c reactive.Container) string {
	keys := c.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := c.Get(k)
		if s, ok := v.(string); ok {
			parts[i] = s
		} else {
			parts[i] = formatValue(v)
		}
	}
	return strings.Join(parts, ",")
}

func joinKeys(c reactive.Container) string {
	keys := c.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(k)
	}
	return strings.Join(parts, ",")
}
