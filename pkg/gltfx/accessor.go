package gltfx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

// Accessor extraction errors.
var (
	ErrNoBufferView             = errors.New("accessor has no buffer view")
	ErrUnsupportedComponentType = errors.New("unsupported accessor component type")
	ErrAccessorBounds           = errors.New("accessor data exceeds buffer bounds")
)

// AccessorData is a tightly packed copy of one accessor's numeric
// contents. Exactly one of the typed slices is populated, matching
// ComponentType; its length is Count*Components.
type AccessorData struct {
	ComponentType gltf.ComponentType
	Components    int
	Count         int

	Int8    []int8
	Uint8   []uint8
	Int16   []int16
	Uint16  []uint16
	Uint32  []uint32
	Float32 []float32
}

// Len returns the number of scalar values held (Count * Components).
func (d *AccessorData) Len() int {
	return d.Count * d.Components
}

// Bytes packs the held values little-endian with no padding, the
// layout a tightly packed buffer view expects.
func (d *AccessorData) Bytes() []byte {
	size := int(d.ComponentType.ByteSize())
	out := make([]byte, 0, d.Len()*size)
	var cell [4]byte
	switch d.ComponentType {
	case gltf.ComponentByte:
		for _, v := range d.Int8 {
			out = append(out, byte(v))
		}
	case gltf.ComponentUbyte:
		out = append(out, d.Uint8...)
	case gltf.ComponentShort:
		for _, v := range d.Int16 {
			binary.LittleEndian.PutUint16(cell[:2], uint16(v))
			out = append(out, cell[:2]...)
		}
	case gltf.ComponentUshort:
		for _, v := range d.Uint16 {
			binary.LittleEndian.PutUint16(cell[:2], v)
			out = append(out, cell[:2]...)
		}
	case gltf.ComponentUint:
		for _, v := range d.Uint32 {
			binary.LittleEndian.PutUint32(cell[:], v)
			out = append(out, cell[:]...)
		}
	case gltf.ComponentFloat:
		for _, v := range d.Float32 {
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			out = append(out, cell[:]...)
		}
	}
	return out
}

// ReadAccessorData reads the accessor's values out of its buffer
// view into a tightly packed typed slice, honoring the view's byte
// stride and both byte offsets. The returned data is a copy; the
// document is not modified.
func ReadAccessorData(doc *gltf.Document, acc *gltf.Accessor) (*AccessorData, error) {
	if acc.BufferView == nil {
		return nil, ErrNoBufferView
	}
	if int(*acc.BufferView) >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d: %w", *acc.BufferView, ErrAccessorBounds)
	}
	view := doc.BufferViews[*acc.BufferView]
	if int(view.Buffer) >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer %d: %w", view.Buffer, ErrAccessorBounds)
	}
	buf := doc.Buffers[view.Buffer].Data

	components := int(acc.Type.Components())
	compSize := int(acc.ComponentType.ByteSize())
	count := int(acc.Count)
	elemSize := components * compSize

	stride := int(view.ByteStride)
	if stride == 0 {
		stride = elemSize
	}

	base := int(view.ByteOffset) + int(acc.ByteOffset)
	if count > 0 {
		last := base + (count-1)*stride + elemSize
		if last > len(buf) {
			return nil, fmt.Errorf("accessor needs %d bytes, buffer has %d: %w",
				last, len(buf), ErrAccessorBounds)
		}
	}

	data := &AccessorData{
		ComponentType: acc.ComponentType,
		Components:    components,
		Count:         count,
	}

	n := count * components
	switch acc.ComponentType {
	case gltf.ComponentByte:
		data.Int8 = make([]int8, 0, n)
	case gltf.ComponentUbyte:
		data.Uint8 = make([]uint8, 0, n)
	case gltf.ComponentShort:
		data.Int16 = make([]int16, 0, n)
	case gltf.ComponentUshort:
		data.Uint16 = make([]uint16, 0, n)
	case gltf.ComponentUint:
		data.Uint32 = make([]uint32, 0, n)
	case gltf.ComponentFloat:
		data.Float32 = make([]float32, 0, n)
	default:
		return nil, fmt.Errorf("component type %d: %w", acc.ComponentType, ErrUnsupportedComponentType)
	}

	for i := 0; i < count; i++ {
		elem := buf[base+i*stride:]
		for c := 0; c < components; c++ {
			v := elem[c*compSize:]
			switch acc.ComponentType {
			case gltf.ComponentByte:
				data.Int8 = append(data.Int8, int8(v[0]))
			case gltf.ComponentUbyte:
				data.Uint8 = append(data.Uint8, v[0])
			case gltf.ComponentShort:
				data.Int16 = append(data.Int16, int16(binary.LittleEndian.Uint16(v)))
			case gltf.ComponentUshort:
				data.Uint16 = append(data.Uint16, binary.LittleEndian.Uint16(v))
			case gltf.ComponentUint:
				data.Uint32 = append(data.Uint32, binary.LittleEndian.Uint32(v))
			case gltf.ComponentFloat:
				data.Float32 = append(data.Float32, math.Float32frombits(binary.LittleEndian.Uint32(v)))
			}
		}
	}
	return data, nil
}
