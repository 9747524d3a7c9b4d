package configtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tree := mustTree(t, Path{"firewall", "name"}, `{"fw1":{"default-action":"drop","description":"web servers","rule":{"10":{"action":"accept","state":{"established":"enable"}}}},"fw2":{}}`)

	want := `firewall {
    name {
        fw1 {
            default-action drop
            description 'web servers'
            rule {
                10 {
                    action accept
                    state {
                        established enable
                    }
                }
            }
        }
        fw2
    }
}
`
	assert.Equal(t, want, Format(tree))
}

func TestFormat_SequencesAndRoot(t *testing.T) {
	tree := mustTree(t, Path{}, `{"system":{"ntp":{"server":["a","b"]}}}`)
	assert.Equal(t, "system {\n    ntp {\n        server a\n        server b\n    }\n}\n", Format(tree))

	assert.Equal(t, "", Format(Empty()))
}
