package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/dracopack/pkg/codec"
	"github.com/Faultbox/dracopack/pkg/export"
	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// Compress rewrites every eligible primitive in the document to
// reference a compressed payload. Primitives whose draw mode is not
// TRIANGLES, or that have no index accessor, pass through untouched.
// Identical primitives share one payload via the fingerprint cache.
// The first error aborts the pass; the document may then be
// partially mutated and should be discarded.
func (p *Pipeline) Compress(doc *gltf.Document, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	plan, err := planQuantization(doc, opts)
	if err != nil {
		return err
	}

	w := &rewriter{doc: doc}
	cache := newFingerprintCache()
	encoded := 0
	deduped := 0

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles || prim.Indices == nil {
				continue
			}
			fp := primitiveFingerprint(prim)
			if cached, ok := cache.lookup(fp); ok {
				w.dedupe(prim, cached)
				deduped++
				continue
			}
			cached, err := p.compressPrimitive(doc, w, prim, plan, opts, mi, pi, mesh.Name)
			if err != nil {
				return fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			cache.insert(fp, cached)
			encoded++
		}
	}

	if encoded+deduped > 0 {
		declareExtension(doc, gltfx.ExtensionDracoMesh, true)
	}
	w.pruneUnused()

	p.log.Info("compress pass finished",
		zap.Int("encoded", encoded),
		zap.Int("deduplicated", deduped))
	return nil
}

func (p *Pipeline) compressPrimitive(doc *gltf.Document, w *rewriter, prim *gltf.Primitive,
	plan *quantizationPlan, opts Options, mi, pi int, meshName string) (*cachedPrimitive, error) {

	if int(*prim.Indices) >= len(doc.Accessors) {
		return nil, fmt.Errorf("indices accessor %d: %w", *prim.Indices, ErrAccessorOutOfRange)
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return nil, fmt.Errorf("read indices: %w", err)
	}
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%d indices: %w", len(indices), ErrIndexCount)
	}

	mesh, err := p.ctx.NewMesh()
	if err != nil {
		return nil, err
	}
	defer mesh.Release()

	faces := make([][3]uint32, len(indices)/3)
	for f := range faces {
		faces[f] = [3]uint32{indices[f*3], indices[f*3+1], indices[f*3+2]}
	}
	mesh.SetFaces(faces)

	attrIDs := make(map[string]uint32, len(prim.Attributes))
	for _, sem := range sortedSemantics(prim.Attributes) {
		accID := prim.Attributes[sem]
		if int(accID) >= len(doc.Accessors) {
			return nil, fmt.Errorf("attribute %s accessor %d: %w", sem, accID, ErrAccessorOutOfRange)
		}
		data, err := gltfx.ReadAccessorData(doc, doc.Accessors[accID])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", sem, err)
		}
		op, err := addOp(data.ComponentType)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", sem, err)
		}
		localID, err := op.add(&mesh.PointCloud, attributeClass(sem), data.Components, data)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", sem, err)
		}
		attrIDs[sem] = uint32(localID)
	}

	enc := p.ctx.NewEncoder()
	if err := plan.apply(enc); err != nil {
		return nil, err
	}
	if len(prim.Targets) > 0 {
		// Morph target deltas are positionally correlated with the
		// base mesh; vertex order must survive encoding.
		enc.SetEncodingMethod(codec.MethodSequential)
	}

	payload, err := enc.EncodeMesh(mesh)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrEncodeFailed
	}

	if opts.DebugDir != "" {
		path := filepath.Join(opts.DebugDir, objFileName(meshName, mi, pi))
		if err := export.WriteMeshOBJ(path, mesh); err != nil {
			p.log.Warn("debug OBJ export failed", zap.String("path", path), zap.Error(err))
		}
	}

	w.attachCompressed(prim, attrIDs, payload)
	p.log.Debug("primitive compressed",
		zap.Int("mesh", mi),
		zap.Int("primitive", pi),
		zap.Int("points", mesh.NumPoints()),
		zap.Int("faces", mesh.NumFaces()),
		zap.Int("payload_bytes", len(payload)))

	return &cachedPrimitive{
		indices:    *prim.Indices,
		attributes: cloneAttributeMap(prim.Attributes),
		ext:        dracoExt(prim),
	}, nil
}

func cloneAttributeMap(attrs map[string]uint32) map[string]uint32 {
	out := make(map[string]uint32, len(attrs))
	for sem, id := range attrs {
		out[sem] = id
	}
	return out
}

func objFileName(meshName string, mi, pi int) string {
	if meshName == "" {
		meshName = fmt.Sprintf("mesh%d", mi)
	}
	return fmt.Sprintf("%s_%d.obj", meshName, pi)
}

// declareExtension records an extension in the document's used list
// and, when required, the required list. Idempotent.
func declareExtension(doc *gltf.Document, name string, required bool) {
	if !containsString(doc.ExtensionsUsed, name) {
		doc.ExtensionsUsed = append(doc.ExtensionsUsed, name)
	}
	if required && !containsString(doc.ExtensionsRequired, name) {
		doc.ExtensionsRequired = append(doc.ExtensionsRequired, name)
	}
}

// undeclareExtension removes an extension from both declaration
// lists.
func undeclareExtension(doc *gltf.Document, name string) {
	doc.ExtensionsUsed = removeString(doc.ExtensionsUsed, name)
	doc.ExtensionsRequired = removeString(doc.ExtensionsRequired, name)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
