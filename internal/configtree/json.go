package configtree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CompleteKey is the wire-form marker for a mapping flagged complete.
const CompleteKey = "__complete"

// MarshalNode encodes a node as JSON. Mapping keys are written in lexical
// order; a complete mapping carries "__complete": true.
func MarshalNode(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n Node) error {
	switch v := n.(type) {
	case nil:
		buf.WriteString("null")
	case *Mapping:
		buf.WriteByte('{')
		first := true
		if v.complete {
			buf.WriteString(`"` + CompleteKey + `":true`)
			first = false
		}
		for _, k := range v.Keys() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeNode(buf, v.entries[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case *Sequence:
		b, err := json.Marshal(v.items)
		if err != nil {
			return err
		}
		if v.items == nil {
			b = []byte("[]")
		}
		buf.Write(b)
	case *Scalar:
		b, err := json.Marshal(v.value)
		if err != nil {
			return err
		}
		buf.Write(b)
	default:
		return fmt.Errorf("unsupported node type %T", n)
	}
	return nil
}

// UnmarshalNode decodes JSON into a node. Objects become mappings, arrays of
// scalars become sequences, and numbers and booleans are stringified. null
// decodes to an empty mapping, the VyOS form of a valueless node.
func UnmarshalNode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return FromPlain(raw)
}

// FromPlain converts decoded JSON/YAML-style values into a node.
func FromPlain(v any) (Node, error) {
	switch val := v.(type) {
	case nil:
		return EmptyMapping(), nil
	case map[string]any:
		m := &Mapping{entries: make(map[string]Node, len(val))}
		for k, child := range val {
			if k == CompleteKey {
				if b, ok := child.(bool); ok {
					m.complete = b
					continue
				}
			}
			n, err := FromPlain(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m.entries[k] = n
		}
		return m, nil
	case map[any]any:
		// yaml.v2 decodes objects with interface keys.
		conv := make(map[string]any, len(val))
		for k, child := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			conv[key] = child
		}
		return FromPlain(conv)
	case []any:
		items := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := scalarString(item)
			if !ok {
				return nil, fmt.Errorf("sequence item %d: expected scalar, got %T", i, item)
			}
			items = append(items, s)
		}
		return &Sequence{items: items}, nil
	case []string:
		return NewSequence(val...), nil
	default:
		s, ok := scalarString(val)
		if !ok {
			return nil, fmt.Errorf("unsupported value type %T", v)
		}
		return &Scalar{value: s}, nil
	}
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	case int:
		return fmt.Sprint(s), true
	case int64:
		return fmt.Sprint(s), true
	case float64:
		return fmt.Sprint(s), true
	default:
		return "", false
	}
}

type treeJSON struct {
	Context  []string        `json:"context"`
	Platform string          `json:"platform,omitempty"`
	Config   json.RawMessage `json:"config"`
}

// MarshalJSON encodes the tree as {"context": [...], "config": ...}.
func (t *ConfigTree) MarshalJSON() ([]byte, error) {
	cfg, err := MarshalNode(t.config)
	if err != nil {
		return nil, err
	}
	ctx := t.context
	if ctx == nil {
		ctx = Path{}
	}
	return json.Marshal(treeJSON{Context: ctx, Platform: t.platform, Config: cfg})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *ConfigTree) UnmarshalJSON(data []byte) error {
	var raw treeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var cfg Node = EmptyMapping()
	if len(raw.Config) > 0 {
		n, err := UnmarshalNode(raw.Config)
		if err != nil {
			return err
		}
		cfg = n
	}
	t.context = Path(raw.Context).Clone()
	t.config = cfg
	t.platform = raw.Platform
	return nil
}

type diffJSON struct {
	Context []string        `json:"context"`
	Left    json.RawMessage `json:"left"`
	Right   json.RawMessage `json:"right"`
}

// MarshalJSON encodes the diff as {"context", "left", "right"}.
func (d *Diff) MarshalJSON() ([]byte, error) {
	left, err := MarshalNode(d.left)
	if err != nil {
		return nil, err
	}
	right, err := MarshalNode(d.right)
	if err != nil {
		return nil, err
	}
	ctx := d.context
	if ctx == nil {
		ctx = Path{}
	}
	return json.Marshal(diffJSON{Context: ctx, Left: left, Right: right})
}
