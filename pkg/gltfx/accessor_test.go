package gltfx

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/qmuntal/gltf"
)

// createTestDoc builds a document with one buffer holding the given
// bytes and one view spanning it with the given stride.
func createTestDoc(data []byte, stride uint32) *gltf.Document {
	return &gltf.Document{
		Buffers: []*gltf.Buffer{
			{ByteLength: uint32(len(data)), Data: data},
		},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteLength: uint32(len(data)), ByteStride: stride},
		},
	}
}

func floatBytes(values ...float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestReadAccessorDataPacked(t *testing.T) {
	doc := createTestDoc(floatBytes(1, 2, 3, 4, 5, 6), 0)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ComponentType: gltf.ComponentFloat,
		Count:         2,
		Type:          gltf.AccessorVec3,
	}

	data, err := ReadAccessorData(doc, acc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if data.Count != 2 || data.Components != 3 {
		t.Fatalf("expected 2 vec3 elements, got %d x%d", data.Count, data.Components)
	}
	want := []float32{1, 2, 3, 4, 5, 6}
	for i, v := range data.Float32 {
		if v != want[i] {
			t.Errorf("value %d: got %v, want %v", i, v, want[i])
		}
	}
}

func TestReadAccessorDataStrided(t *testing.T) {
	// Two vec2 elements interleaved with 8 bytes of padding each.
	raw := make([]byte, 0, 32)
	raw = append(raw, floatBytes(1, 2)...)
	raw = append(raw, make([]byte, 8)...)
	raw = append(raw, floatBytes(3, 4)...)
	raw = append(raw, make([]byte, 8)...)

	doc := createTestDoc(raw, 16)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ComponentType: gltf.ComponentFloat,
		Count:         2,
		Type:          gltf.AccessorVec2,
	}

	data, err := ReadAccessorData(doc, acc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := []float32{1, 2, 3, 4}
	for i, v := range data.Float32 {
		if v != want[i] {
			t.Errorf("value %d: got %v, want %v", i, v, want[i])
		}
	}
}

func TestReadAccessorDataOffsets(t *testing.T) {
	// Accessor byte offset skips the first element.
	doc := createTestDoc(floatBytes(9, 9, 1, 2), 0)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ByteOffset:    8,
		ComponentType: gltf.ComponentFloat,
		Count:         1,
		Type:          gltf.AccessorVec2,
	}

	data, err := ReadAccessorData(doc, acc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if data.Float32[0] != 1 || data.Float32[1] != 2 {
		t.Errorf("expected [1 2], got %v", data.Float32)
	}
}

func TestReadAccessorDataTyped(t *testing.T) {
	doc := createTestDoc([]byte{0, 1, 255, 128}, 0)

	tests := []struct {
		name string
		ct   gltf.ComponentType
		typ  gltf.AccessorType
	}{
		{"ubyte", gltf.ComponentUbyte, gltf.AccessorVec4},
		{"byte", gltf.ComponentByte, gltf.AccessorVec4},
		{"ushort", gltf.ComponentUshort, gltf.AccessorVec2},
		{"short", gltf.ComponentShort, gltf.AccessorVec2},
		{"uint", gltf.ComponentUint, gltf.AccessorScalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &gltf.Accessor{
				BufferView:    gltf.Index(0),
				ComponentType: tt.ct,
				Count:         1,
				Type:          tt.typ,
			}
			data, err := ReadAccessorData(doc, acc)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if data.Len() != int(tt.typ.Components()) {
				t.Errorf("expected %d values, got %d", tt.typ.Components(), data.Len())
			}
		})
	}
}

func TestReadAccessorDataNoBufferView(t *testing.T) {
	doc := createTestDoc(nil, 0)
	acc := &gltf.Accessor{
		ComponentType: gltf.ComponentFloat,
		Count:         1,
		Type:          gltf.AccessorScalar,
	}

	if _, err := ReadAccessorData(doc, acc); !errors.Is(err, ErrNoBufferView) {
		t.Errorf("expected ErrNoBufferView, got %v", err)
	}
}

func TestReadAccessorDataBounds(t *testing.T) {
	doc := createTestDoc(floatBytes(1, 2, 3), 0)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ComponentType: gltf.ComponentFloat,
		Count:         2,
		Type:          gltf.AccessorVec3,
	}

	if _, err := ReadAccessorData(doc, acc); !errors.Is(err, ErrAccessorBounds) {
		t.Errorf("expected ErrAccessorBounds, got %v", err)
	}
}

func TestAccessorDataBytesRoundTrip(t *testing.T) {
	raw := floatBytes(1.5, -2.25, 1e-3, 4096)
	doc := createTestDoc(raw, 0)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ComponentType: gltf.ComponentFloat,
		Count:         2,
		Type:          gltf.AccessorVec2,
	}

	data, err := ReadAccessorData(doc, acc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	got := data.Bytes()
	if len(got) != len(raw) {
		t.Fatalf("expected %d bytes, got %d", len(raw), len(got))
	}
	for i := range got {
		if got[i] != raw[i] {
			t.Fatalf("byte %d differs", i)
		}
	}
}
