package pipeline

import (
	"bytes"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/zeebo/blake3"

	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// fingerprint content-addresses a primitive by its geometry inputs.
// Collisions are assumed impossible and not defended against.
type fingerprint [32]byte

// primitiveFingerprint derives the canonical fingerprint of a
// primitive from its draw mode, index accessor, attribute mapping,
// and whether it carries morph targets (targets change the encoding
// method, so primitives differing only there must not share a
// payload). Attribute pairs are serialized in sorted semantic order
// so the key is stable.
func primitiveFingerprint(p *gltf.Primitive) fingerprint {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "mode=%d;", p.Mode)
	if p.Indices != nil {
		fmt.Fprintf(&buf, "indices=%d;", *p.Indices)
	}
	fmt.Fprintf(&buf, "targets=%d;", len(p.Targets))
	for _, sem := range sortedSemantics(p.Attributes) {
		fmt.Fprintf(&buf, "%s=%d;", sem, p.Attributes[sem])
	}
	return blake3.Sum256(buf.Bytes())
}

// cachedPrimitive is the rewrite result of one fully encoded
// primitive: the accessor references and extension record that a
// later identical primitive copies instead of re-encoding.
type cachedPrimitive struct {
	indices    uint32
	attributes map[string]uint32
	ext        *gltfx.DracoMesh
}

// fingerprintCache maps primitive fingerprints to their encoded
// results within a single compress pass.
type fingerprintCache struct {
	entries map[fingerprint]*cachedPrimitive
}

func newFingerprintCache() *fingerprintCache {
	return &fingerprintCache{entries: make(map[fingerprint]*cachedPrimitive)}
}

func (c *fingerprintCache) lookup(fp fingerprint) (*cachedPrimitive, bool) {
	entry, ok := c.entries[fp]
	return entry, ok
}

func (c *fingerprintCache) insert(fp fingerprint, entry *cachedPrimitive) {
	c.entries[fp] = entry
}
