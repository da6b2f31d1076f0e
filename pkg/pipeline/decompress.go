package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/dracopack/pkg/codec"
	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// ErrAttributeNotDecoded reports an extension record pointing at a
// codec-local attribute id the payload does not contain.
var ErrAttributeNotDecoded = errors.New("codec payload has no attribute with the mapped id")

// Decompress restores plain accessor data for every primitive
// carrying the compression extension, strips the extension records,
// and prunes the payload buffers. The first error aborts the pass.
func (p *Pipeline) Decompress(doc *gltf.Document) error {
	w := &rewriter{doc: doc}
	restored := 0

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			ext := dracoExt(prim)
			if ext == nil {
				continue
			}
			if err := p.decompressPrimitive(doc, w, prim, ext); err != nil {
				return fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			delete(prim.Extensions, gltfx.ExtensionDracoMesh)
			if len(prim.Extensions) == 0 {
				prim.Extensions = nil
			}
			restored++
		}
	}

	if restored > 0 {
		undeclareExtension(doc, gltfx.ExtensionDracoMesh)
	}
	w.pruneUnused()

	p.log.Info("decompress pass finished", zap.Int("restored", restored))
	return nil
}

func (p *Pipeline) decompressPrimitive(doc *gltf.Document, w *rewriter, prim *gltf.Primitive, ext *gltfx.DracoMesh) error {
	payload, err := viewPayload(doc, ext.BufferView)
	if err != nil {
		return err
	}

	dec := p.ctx.NewDecoder()
	geom, err := dec.GeometryType(payload)
	if err != nil {
		return fmt.Errorf("payload header: %w", err)
	}

	var pc *codec.PointCloud
	var mesh *codec.Mesh
	switch geom {
	case codec.GeometryMesh:
		mesh, err = dec.DecodeMesh(payload)
		if err != nil {
			return fmt.Errorf("decode mesh: %w", err)
		}
		defer mesh.Release()
		pc = &mesh.PointCloud
	default:
		pc, err = dec.DecodePointCloud(payload)
		if err != nil {
			return fmt.Errorf("decode point cloud: %w", err)
		}
		defer pc.Release()
	}

	if pc.AttributeByClass(codec.ClassPosition) == nil {
		return ErrNoPosition
	}

	if mesh != nil && prim.Indices != nil {
		if int(*prim.Indices) >= len(doc.Accessors) {
			return fmt.Errorf("indices accessor %d: %w", *prim.Indices, ErrAccessorOutOfRange)
		}
		idxAcc := doc.Accessors[*prim.Indices]
		data, err := indexBytes(mesh, idxAcc.ComponentType)
		if err != nil {
			return err
		}
		w.attachDecompressed(*prim.Indices, data, uint32(mesh.NumFaces()*3))
	}

	for _, sem := range sortedSemantics(ext.Attributes) {
		localID := ext.Attributes[sem]
		accID, ok := prim.Attributes[sem]
		if !ok {
			return fmt.Errorf("%s: %w", sem, ErrMissingAttribute)
		}
		if int(accID) >= len(doc.Accessors) {
			return fmt.Errorf("attribute %s accessor %d: %w", sem, accID, ErrAccessorOutOfRange)
		}
		attr := pc.Attribute(int(localID))
		if attr == nil {
			return fmt.Errorf("attribute %s id %d: %w", sem, localID, ErrAttributeNotDecoded)
		}
		op, err := getOp(attr.DataType())
		if err != nil {
			return fmt.Errorf("attribute %s: %w", sem, err)
		}
		data := op.get(attr)
		w.attachDecompressed(accID, data.Bytes(), uint32(attr.Count()))
	}
	return nil
}

// indexBytes packs the decoded faces into a flat index array of the
// accessor's declared component type, in face order, so downstream
// consumers see the index width they declared.
func indexBytes(m *codec.Mesh, ct gltf.ComponentType) ([]byte, error) {
	n := m.NumFaces()
	switch ct {
	case gltf.ComponentUbyte:
		out := make([]byte, 0, n*3)
		for f := 0; f < n; f++ {
			face := m.Face(f)
			out = append(out, byte(face[0]), byte(face[1]), byte(face[2]))
		}
		return out, nil
	case gltf.ComponentUshort:
		out := make([]byte, n*3*2)
		for f := 0; f < n; f++ {
			face := m.Face(f)
			for v := 0; v < 3; v++ {
				binary.LittleEndian.PutUint16(out[(f*3+v)*2:], uint16(face[v]))
			}
		}
		return out, nil
	case gltf.ComponentUint:
		out := make([]byte, n*3*4)
		for f := 0; f < n; f++ {
			face := m.Face(f)
			for v := 0; v < 3; v++ {
				binary.LittleEndian.PutUint32(out[(f*3+v)*4:], face[v])
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("index component type %d: %w", ct, ErrUnsupportedAttributeType)
	}
}

// viewPayload resolves the raw bytes a buffer view spans.
func viewPayload(doc *gltf.Document, viewID uint32) ([]byte, error) {
	if int(viewID) >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d: %w", viewID, ErrViewOutOfRange)
	}
	view := doc.BufferViews[viewID]
	if int(view.Buffer) >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer %d: %w", view.Buffer, ErrViewOutOfRange)
	}
	data := doc.Buffers[view.Buffer].Data
	end := int(view.ByteOffset) + int(view.ByteLength)
	if end > len(data) {
		return nil, fmt.Errorf("buffer view %d spans %d bytes, buffer has %d: %w",
			viewID, end, len(data), ErrViewOutOfRange)
	}
	return data[view.ByteOffset:end], nil
}
