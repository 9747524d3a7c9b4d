package configtree

import (
	"strings"
)

const indentUnit = "    "

// Format renders t in the curly-brace layout of "show configuration",
// nested under its context path. Output is deterministic, so two renders can
// be compared line by line.
func Format(t *ConfigTree) string {
	var b strings.Builder
	depth := 0
	for _, seg := range t.context {
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteString(quoteSegment(seg))
		b.WriteString(" {\n")
		depth++
	}
	formatBody(&b, t.config, depth)
	for depth > 0 {
		depth--
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteString("}\n")
	}
	return b.String()
}

func formatBody(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	switch v := n.(type) {
	case *Mapping:
		for _, k := range v.Keys() {
			formatEntry(b, k, v.entries[k], depth)
		}
	case *Sequence:
		for _, item := range v.items {
			b.WriteString(indent + quoteSegment(item) + "\n")
		}
	case *Scalar:
		b.WriteString(indent + quoteSegment(v.value) + "\n")
	}
}

func formatEntry(b *strings.Builder, key string, n Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	key = quoteSegment(key)
	switch v := n.(type) {
	case *Mapping:
		if v.Len() == 0 {
			b.WriteString(indent + key + "\n")
			return
		}
		b.WriteString(indent + key + " {\n")
		formatBody(b, v, depth+1)
		b.WriteString(indent + "}\n")
	case *Sequence:
		for _, item := range v.items {
			b.WriteString(indent + key + " " + quoteSegment(item) + "\n")
		}
	case *Scalar:
		b.WriteString(indent + key + " " + quoteSegment(v.value) + "\n")
	}
}
