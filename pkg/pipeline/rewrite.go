package pipeline

import (
	"github.com/qmuntal/gltf"

	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// rewriter owns every mutation of the document's buffer, buffer
// view, and accessor arrays plus primitive extension records. All
// index bookkeeping funnels through it so the cross-references stay
// consistent.
type rewriter struct {
	doc *gltf.Document
}

// dracoExt returns the primitive's compression record, or nil.
func dracoExt(prim *gltf.Primitive) *gltfx.DracoMesh {
	if prim.Extensions == nil {
		return nil
	}
	ext, _ := prim.Extensions[gltfx.ExtensionDracoMesh].(*gltfx.DracoMesh)
	return ext
}

// animationExt returns the document's compressed-timeline records,
// or nil.
func animationExt(doc *gltf.Document) []*gltfx.DracoAnimation {
	if doc.Extensions == nil {
		return nil
	}
	ext, _ := doc.Extensions[gltfx.ExtensionDracoAnimation].([]*gltfx.DracoAnimation)
	return ext
}

// addPayload appends a dedicated buffer holding payload and a view
// spanning exactly that buffer. Payload views never share a buffer
// and always start at offset zero.
func (w *rewriter) addPayload(payload []byte) uint32 {
	w.doc.Buffers = append(w.doc.Buffers, &gltf.Buffer{
		ByteLength: uint32(len(payload)),
		Data:       payload,
	})
	w.doc.BufferViews = append(w.doc.BufferViews, &gltf.BufferView{
		Buffer:     uint32(len(w.doc.Buffers) - 1),
		ByteLength: uint32(len(payload)),
	})
	return uint32(len(w.doc.BufferViews) - 1)
}

// cloneStripped appends a copy of the accessor with its buffer view
// reference and byte offset removed. Component type, count, element
// type, and min/max survive, so the accessor still describes the
// logical data whose bytes now live only in the compressed payload.
func (w *rewriter) cloneStripped(accID uint32) uint32 {
	clone := *w.doc.Accessors[accID]
	clone.BufferView = nil
	clone.ByteOffset = 0
	w.doc.Accessors = append(w.doc.Accessors, &clone)
	return uint32(len(w.doc.Accessors) - 1)
}

// attachCompressed rewrites a primitive to reference the compressed
// payload: cloned view-less accessors, a fresh buffer/view pair, and
// the extension record mapping semantics to codec-local ids.
func (w *rewriter) attachCompressed(prim *gltf.Primitive, attrIDs map[string]uint32, payload []byte) {
	prim.Indices = gltf.Index(w.cloneStripped(*prim.Indices))

	attrs := make(gltf.Attribute, len(prim.Attributes))
	for sem, accID := range prim.Attributes {
		attrs[sem] = w.cloneStripped(accID)
	}
	prim.Attributes = attrs

	ext := &gltfx.DracoMesh{
		BufferView: w.addPayload(payload),
		Attributes: attrIDs,
	}
	if prim.Extensions == nil {
		prim.Extensions = gltf.Extensions{}
	}
	prim.Extensions[gltfx.ExtensionDracoMesh] = ext
}

// dedupe points a primitive at an already-encoded identical
// primitive's accessors and extension record. No new buffers are
// created; the shared payload serves both.
func (w *rewriter) dedupe(prim *gltf.Primitive, cached *cachedPrimitive) {
	prim.Indices = gltf.Index(cached.indices)

	attrs := make(gltf.Attribute, len(cached.attributes))
	for sem, accID := range cached.attributes {
		attrs[sem] = accID
	}
	prim.Attributes = attrs

	ext := &gltfx.DracoMesh{
		BufferView: cached.ext.BufferView,
		Attributes: make(map[string]uint32, len(cached.ext.Attributes)),
	}
	for sem, id := range cached.ext.Attributes {
		ext.Attributes[sem] = id
	}
	if prim.Extensions == nil {
		prim.Extensions = gltf.Extensions{}
	}
	prim.Extensions[gltfx.ExtensionDracoMesh] = ext
}

// attachDecompressed gives an accessor a fresh view over newly
// materialized bytes and updates its count to the decoded point
// count.
func (w *rewriter) attachDecompressed(accID uint32, data []byte, count uint32) {
	viewID := w.addPayload(data)
	acc := w.doc.Accessors[accID]
	acc.BufferView = gltf.Index(viewID)
	acc.ByteOffset = 0
	acc.Count = count
}

// pruneUnused removes every accessor, buffer view, and buffer that
// is no longer reachable from a primitive, animation, skin, image,
// or extension record, remapping all surviving references. Run once
// at the end of each pass.
func (w *rewriter) pruneUnused() {
	w.pruneAccessors()
	w.pruneBufferViews()
	w.pruneBuffers()
}

func (w *rewriter) pruneAccessors() {
	doc := w.doc
	used := make([]bool, len(doc.Accessors))
	mark := func(id uint32) {
		if int(id) < len(used) {
			used[id] = true
		}
	}

	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Indices != nil {
				mark(*prim.Indices)
			}
			for _, accID := range prim.Attributes {
				mark(accID)
			}
			for _, target := range prim.Targets {
				for _, accID := range target {
					mark(accID)
				}
			}
		}
	}
	for _, anim := range doc.Animations {
		for _, sampler := range anim.Samplers {
			mark(sampler.Input)
			mark(sampler.Output)
		}
	}
	for _, skin := range doc.Skins {
		if skin.InverseBindMatrices != nil {
			mark(*skin.InverseBindMatrices)
		}
	}
	for _, entry := range animationExt(doc) {
		mark(entry.Input)
		for _, out := range entry.Outputs {
			mark(out)
		}
	}

	remap := make([]uint32, len(doc.Accessors))
	kept := make([]*gltf.Accessor, 0, len(doc.Accessors))
	for i, acc := range doc.Accessors {
		if used[i] {
			remap[i] = uint32(len(kept))
			kept = append(kept, acc)
		}
	}
	if len(kept) == len(doc.Accessors) {
		return
	}
	doc.Accessors = kept

	// Dangling ids were never marked, so they have no remap entry
	// either; leave them as they were, like mark does.
	remapID := func(id uint32) uint32 {
		if int(id) < len(remap) {
			return remap[id]
		}
		return id
	}

	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Indices != nil {
				prim.Indices = gltf.Index(remapID(*prim.Indices))
			}
			for sem, accID := range prim.Attributes {
				prim.Attributes[sem] = remapID(accID)
			}
			for _, target := range prim.Targets {
				for sem, accID := range target {
					target[sem] = remapID(accID)
				}
			}
		}
	}
	for _, anim := range doc.Animations {
		for _, sampler := range anim.Samplers {
			sampler.Input = remapID(sampler.Input)
			sampler.Output = remapID(sampler.Output)
		}
	}
	for _, skin := range doc.Skins {
		if skin.InverseBindMatrices != nil {
			skin.InverseBindMatrices = gltf.Index(remapID(*skin.InverseBindMatrices))
		}
	}
	for _, entry := range animationExt(doc) {
		entry.Input = remapID(entry.Input)
		for i, out := range entry.Outputs {
			entry.Outputs[i] = remapID(out)
		}
	}
}

func (w *rewriter) pruneBufferViews() {
	doc := w.doc
	used := make([]bool, len(doc.BufferViews))
	mark := func(id uint32) {
		if int(id) < len(used) {
			used[id] = true
		}
	}

	for _, acc := range doc.Accessors {
		if acc.BufferView != nil {
			mark(*acc.BufferView)
		}
		if acc.Sparse != nil {
			mark(acc.Sparse.Indices.BufferView)
			mark(acc.Sparse.Values.BufferView)
		}
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			mark(*img.BufferView)
		}
	}
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if ext := dracoExt(prim); ext != nil {
				mark(ext.BufferView)
			}
		}
	}
	for _, entry := range animationExt(doc) {
		mark(entry.BufferView)
	}

	remap := make([]uint32, len(doc.BufferViews))
	kept := make([]*gltf.BufferView, 0, len(doc.BufferViews))
	for i, view := range doc.BufferViews {
		if used[i] {
			remap[i] = uint32(len(kept))
			kept = append(kept, view)
		}
	}
	if len(kept) == len(doc.BufferViews) {
		return
	}
	doc.BufferViews = kept

	remapID := func(id uint32) uint32 {
		if int(id) < len(remap) {
			return remap[id]
		}
		return id
	}

	for _, acc := range doc.Accessors {
		if acc.BufferView != nil {
			acc.BufferView = gltf.Index(remapID(*acc.BufferView))
		}
		if acc.Sparse != nil {
			acc.Sparse.Indices.BufferView = remapID(acc.Sparse.Indices.BufferView)
			acc.Sparse.Values.BufferView = remapID(acc.Sparse.Values.BufferView)
		}
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			img.BufferView = gltf.Index(remapID(*img.BufferView))
		}
	}
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if ext := dracoExt(prim); ext != nil {
				ext.BufferView = remapID(ext.BufferView)
			}
		}
	}
	for _, entry := range animationExt(doc) {
		entry.BufferView = remapID(entry.BufferView)
	}
}

func (w *rewriter) pruneBuffers() {
	doc := w.doc
	used := make([]bool, len(doc.Buffers))
	for _, view := range doc.BufferViews {
		if int(view.Buffer) < len(used) {
			used[view.Buffer] = true
		}
	}

	remap := make([]uint32, len(doc.Buffers))
	kept := make([]*gltf.Buffer, 0, len(doc.Buffers))
	for i, buf := range doc.Buffers {
		if used[i] {
			remap[i] = uint32(len(kept))
			kept = append(kept, buf)
		}
	}
	if len(kept) == len(doc.Buffers) {
		return
	}
	doc.Buffers = kept

	for _, view := range doc.BufferViews {
		if int(view.Buffer) < len(remap) {
			view.Buffer = remap[view.Buffer]
		}
	}
}
