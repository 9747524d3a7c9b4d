package config

import (
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// BlockSchema describes one HCL block type of the configuration file.
type BlockSchema struct {
	Name       string            `yaml:"name" json:"name"`
	Labels     []string          `yaml:"labels,omitempty" json:"labels,omitempty"`
	Repeated   bool              `yaml:"repeated,omitempty" json:"repeated,omitempty"`
	Attributes []AttributeSchema `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Blocks     []BlockSchema     `yaml:"blocks,omitempty" json:"blocks,omitempty"`
}

// AttributeSchema describes one attribute of a block.
type AttributeSchema struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

var ctyValueType = reflect.TypeOf(cty.Value{})

// Schema returns the block structure of a configuration file, derived from
// the hcl struct tags of Config. The root block has no name.
func Schema() BlockSchema {
	return reflectBlock("", reflect.TypeOf(Config{}))
}

func reflectBlock(name string, t reflect.Type) BlockSchema {
	b := BlockSchema{Name: name}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("hcl")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		fname, kind := parts[0], ""
		if len(parts) > 1 {
			kind = parts[1]
		}

		switch kind {
		case "label":
			b.Labels = append(b.Labels, fname)
		case "block":
			ft := field.Type
			repeated := false
			if ft.Kind() == reflect.Slice {
				ft, repeated = ft.Elem(), true
			}
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			child := reflectBlock(fname, ft)
			child.Repeated = repeated
			b.Blocks = append(b.Blocks, child)
		default:
			b.Attributes = append(b.Attributes, AttributeSchema{
				Name:     fname,
				Type:     attributeType(field.Type),
				Required: kind != "optional",
			})
		}
	}
	return b
}

func attributeType(t reflect.Type) string {
	if t == ctyValueType {
		return "any"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice:
		return "list(" + attributeType(t.Elem()) + ")"
	case reflect.Map:
		return "map(" + attributeType(t.Elem()) + ")"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int64:
		return "number"
	default:
		return "string"
	}
}

// Block finds a direct child block by name.
func (b BlockSchema) Block(name string) (BlockSchema, bool) {
	for _, c := range b.Blocks {
		if c.Name == name {
			return c, true
		}
	}
	return BlockSchema{}, false
}

// Attribute finds an attribute by name.
func (b BlockSchema) Attribute(name string) (AttributeSchema, bool) {
	for _, a := range b.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSchema{}, false
}
