package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

// createTestMesh builds a two-triangle quad with positions, normals,
// and a uint8 color stream.
func createTestMesh(t *testing.T, ctx *Context) *Mesh {
	t.Helper()

	mesh, err := ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}

	positions := []float32{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
	}
	if _, err := mesh.AddAttributeFloat32(ClassPosition, 3, positions); err != nil {
		t.Fatalf("failed to add positions: %v", err)
	}

	normals := []float32{
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
	}
	if _, err := mesh.AddAttributeFloat32(ClassNormal, 3, normals); err != nil {
		t.Fatalf("failed to add normals: %v", err)
	}

	colors := []uint8{
		255, 0, 0, 255,
		0, 255, 0, 255,
		0, 0, 255, 255,
		255, 255, 255, 255,
	}
	if _, err := mesh.AddAttributeUint8(ClassColor, 4, colors); err != nil {
		t.Fatalf("failed to add colors: %v", err)
	}

	mesh.AddFace([3]uint32{0, 1, 2})
	mesh.AddFace([3]uint32{0, 2, 3})
	return mesh
}

func TestMeshRoundTripLossless(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh := createTestMesh(t, ctx)
	defer mesh.Release()

	enc := ctx.NewEncoder()
	payload, err := enc.EncodeMesh(mesh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	got, err := dec.DecodeMesh(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	defer got.Release()

	if got.NumPoints() != 4 {
		t.Errorf("expected 4 points, got %d", got.NumPoints())
	}
	if got.NumFaces() != 2 {
		t.Errorf("expected 2 faces, got %d", got.NumFaces())
	}
	if got.Face(0) != [3]uint32{0, 1, 2} || got.Face(1) != [3]uint32{0, 2, 3} {
		t.Errorf("faces did not survive: %v, %v", got.Face(0), got.Face(1))
	}

	pos := got.AttributeByClass(ClassPosition)
	if pos == nil {
		t.Fatal("position attribute missing after decode")
	}
	want := mesh.AttributeByClass(ClassPosition).Float32Values()
	for i, v := range pos.Float32Values() {
		if v != want[i] {
			t.Errorf("position value %d: got %v, want %v", i, v, want[i])
		}
	}

	color := got.AttributeByClass(ClassColor)
	if color == nil {
		t.Fatal("color attribute missing after decode")
	}
	if color.DataType() != TypeUint8 || color.Components() != 4 {
		t.Errorf("color decoded as %s x%d", color.DataType(), color.Components())
	}
	wantColor := mesh.AttributeByClass(ClassColor).Uint8Values()
	if !bytes.Equal(color.Uint8Values(), wantColor) {
		t.Errorf("color values did not survive")
	}
}

func TestMeshRoundTripQuantized(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh, err := ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}
	defer mesh.Release()

	rng := rand.New(rand.NewSource(42))
	const points = 100
	positions := make([]float32, points*3)
	for i := range positions {
		positions[i] = rng.Float32()*20 - 10
	}
	if _, err := mesh.AddAttributeFloat32(ClassPosition, 3, positions); err != nil {
		t.Fatalf("failed to add positions: %v", err)
	}
	for i := 0; i+2 < points; i += 3 {
		mesh.AddFace([3]uint32{uint32(i), uint32(i + 1), uint32(i + 2)})
	}

	const bits = 12
	enc := ctx.NewEncoder()
	if err := enc.SetQuantization(ClassPosition, bits); err != nil {
		t.Fatalf("set quantization: %v", err)
	}
	payload, err := enc.EncodeMesh(mesh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	got, err := dec.DecodeMesh(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	defer got.Release()

	// Worst case error is half a quantization step. The data spans
	// 20 units, so the step is 20/(2^12-1).
	step := float32(20.0) / float32(1<<bits-1)
	decoded := got.AttributeByClass(ClassPosition).Float32Values()
	for i, v := range decoded {
		diff := v - positions[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > step {
			t.Fatalf("position value %d drifted by %v, step is %v", i, diff, step)
		}
	}
}

func TestExplicitQuantizationGrid(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	pc, err := ctx.NewPointCloud()
	if err != nil {
		t.Fatalf("failed to create point cloud: %v", err)
	}
	defer pc.Release()

	values := []float32{-1, -2, 0, 2, 1, 0}
	if _, err := pc.AddAttributeFloat32(ClassPosition, 3, values); err != nil {
		t.Fatalf("failed to add positions: %v", err)
	}

	const bits = 10
	origin := []float32{-1, -2, 0}
	enc := ctx.NewEncoder()
	if err := enc.SetExplicitQuantization(ClassPosition, bits, origin, 3); err != nil {
		t.Fatalf("set explicit quantization: %v", err)
	}
	payload, err := enc.EncodePointCloud(pc)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	got, err := dec.DecodePointCloud(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	defer got.Release()

	// Both corners sit exactly on the quantization grid, so they
	// survive bit-exact.
	decoded := got.AttributeByClass(ClassPosition).Float32Values()
	for i, v := range decoded {
		if v != values[i] {
			t.Errorf("value %d: got %v, want %v", i, v, values[i])
		}
	}
}

func TestComputeRange(t *testing.T) {
	values := []float32{-1, -2, 0, 2, 1, 0}
	origin, rng := computeRange(values, 3)

	want := []float32{-1, -2, 0}
	for c, v := range origin {
		if v != want[c] {
			t.Errorf("origin component %d: got %v, want %v", c, v, want[c])
		}
	}
	if rng != 3 {
		t.Errorf("expected range 3, got %v", rng)
	}
}

func TestComputeRangeDegenerate(t *testing.T) {
	values := []float32{5, 5, 5, 5}
	origin, rng := computeRange(values, 2)

	if origin[0] != 5 || origin[1] != 5 {
		t.Errorf("expected origin [5 5], got %v", origin)
	}
	if rng != 1 {
		t.Errorf("expected degenerate range 1, got %v", rng)
	}
}

func TestGroupBytes4RoundTrip(t *testing.T) {
	data := make([]byte, 64)
	rng := rand.New(rand.NewSource(7))
	rng.Read(data)

	grouped := groupBytes4(data)
	if bytes.Equal(grouped, data) {
		t.Error("grouping left data unchanged")
	}
	if got := ungroupBytes4(grouped); !bytes.Equal(got, data) {
		t.Error("ungrouping did not invert grouping")
	}
}

func TestCompressPayloadFallback(t *testing.T) {
	// Incompressible bytes must be stored verbatim.
	raw := make([]byte, 256)
	rand.New(rand.NewSource(3)).Read(raw)

	tag, comp := compressPayload(raw, compressionZstd)
	if tag != compressionNone {
		t.Errorf("expected verbatim storage for random bytes, got tag %d", tag)
	}
	if !bytes.Equal(comp, raw) {
		t.Error("verbatim payload does not match input")
	}

	// Repetitive bytes must shrink.
	rep := bytes.Repeat([]byte{1, 2, 3, 4}, 256)
	tag, comp = compressPayload(rep, compressionLZ4)
	if tag != compressionLZ4 {
		t.Errorf("expected lz4 tag for repetitive bytes, got %d", tag)
	}
	if len(comp) >= len(rep) {
		t.Errorf("lz4 did not shrink payload: %d >= %d", len(comp), len(rep))
	}

	got, err := decompressPayload(comp, tag, len(rep))
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if !bytes.Equal(got, rep) {
		t.Error("decompressed payload does not match input")
	}
}

func TestEncodingMethodRecorded(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh := createTestMesh(t, ctx)
	defer mesh.Release()

	enc := ctx.NewEncoder()
	enc.SetEncodingMethod(MethodSequential)
	payload, err := enc.EncodeMesh(mesh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	got, err := dec.DecodeMesh(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	defer got.Release()

	if got.EncodingMethod() != MethodSequential {
		t.Errorf("expected sequential method, got %d", got.EncodingMethod())
	}
}

func TestGeometryTypePeek(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh := createTestMesh(t, ctx)
	defer mesh.Release()

	payload, err := ctx.NewEncoder().EncodeMesh(mesh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	geom, err := dec.GeometryType(payload)
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if geom != GeometryMesh {
		t.Errorf("expected mesh geometry, got %d", geom)
	}

	if _, err := dec.GeometryType([]byte("XXXX\x00")); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic for garbage, got %v", err)
	}
	if _, err := dec.GeometryType([]byte("GC")); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("expected ErrTruncatedPayload for short payload, got %v", err)
	}
}

func TestDecodeWrongGeometry(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	pc, err := ctx.NewPointCloud()
	if err != nil {
		t.Fatalf("failed to create point cloud: %v", err)
	}
	defer pc.Release()
	if _, err := pc.AddAttributeFloat32(ClassPosition, 3, []float32{0, 0, 0}); err != nil {
		t.Fatalf("failed to add positions: %v", err)
	}

	payload, err := ctx.NewEncoder().EncodePointCloud(pc)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if _, err := ctx.NewDecoder().DecodeMesh(payload); !errors.Is(err, ErrWrongGeometry) {
		t.Errorf("expected ErrWrongGeometry, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh := createTestMesh(t, ctx)
	defer mesh.Release()

	payload, err := ctx.NewEncoder().EncodeMesh(mesh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := ctx.NewDecoder()
	for _, cut := range []int{len(payload) / 2, len(payload) - 1, 12} {
		if _, err := dec.DecodeMesh(payload[:cut]); err == nil {
			t.Errorf("expected error decoding payload cut at %d bytes", cut)
		}
	}
}

func TestEncodeNoAttributes(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh, err := ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}
	defer mesh.Release()

	if _, err := ctx.NewEncoder().EncodeMesh(mesh); !errors.Is(err, ErrNoAttributes) {
		t.Errorf("expected ErrNoAttributes, got %v", err)
	}
}

func TestAttributePointCountMismatch(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	pc, err := ctx.NewPointCloud()
	if err != nil {
		t.Fatalf("failed to create point cloud: %v", err)
	}
	defer pc.Release()

	if _, err := pc.AddAttributeFloat32(ClassPosition, 3, make([]float32, 9)); err != nil {
		t.Fatalf("failed to add positions: %v", err)
	}
	if _, err := pc.AddAttributeFloat32(ClassNormal, 3, make([]float32, 6)); !errors.Is(err, ErrPointCountMismatch) {
		t.Errorf("expected ErrPointCountMismatch, got %v", err)
	}
}

func TestQuantizationBitsValidation(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	enc := ctx.NewEncoder()
	if err := enc.SetQuantization(ClassPosition, -1); !errors.Is(err, ErrBadQuantization) {
		t.Errorf("expected ErrBadQuantization for -1 bits, got %v", err)
	}
	if err := enc.SetQuantization(ClassPosition, 31); !errors.Is(err, ErrBadQuantization) {
		t.Errorf("expected ErrBadQuantization for 31 bits, got %v", err)
	}
	if err := enc.SetQuantizationByID(0, 31); !errors.Is(err, ErrBadQuantization) {
		t.Errorf("expected ErrBadQuantization for 31 bits by id, got %v", err)
	}
	if err := enc.SetExplicitQuantization(ClassPosition, 10, []float32{0, 0, 0}, 0); !errors.Is(err, ErrBadQuantization) {
		t.Errorf("expected ErrBadQuantization for zero range, got %v", err)
	}
	if err := enc.SetQuantization(ClassPosition, 30); err != nil {
		t.Errorf("30 bits should be accepted, got %v", err)
	}
}

func TestContextLifecycle(t *testing.T) {
	ctx := NewContext()
	mesh, err := ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}

	// A leaked mesh must fail the close.
	if err := ctx.Close(); err == nil {
		t.Error("expected error closing context with live geometry")
	}

	ctx = NewContext()
	mesh, err = ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}
	mesh.Release()
	if err := ctx.Close(); err != nil {
		t.Errorf("expected clean close, got %v", err)
	}

	// Everything after close fails.
	if _, err := ctx.NewMesh(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("expected ErrContextClosed, got %v", err)
	}
	if err := ctx.Close(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("expected ErrContextClosed on double close, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := NewContext()
	mesh, err := ctx.NewMesh()
	if err != nil {
		t.Fatalf("failed to create mesh: %v", err)
	}
	mesh.Release()
	mesh.Release()
	if err := ctx.Close(); err != nil {
		t.Errorf("double release corrupted the live count: %v", err)
	}
}

func TestEncodeReleasedGeometry(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	mesh := createTestMesh(t, ctx)
	mesh.Release()

	if _, err := ctx.NewEncoder().EncodeMesh(mesh); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
}

// hostilePointCloudPayload builds a syntactically valid point-cloud
// header followed by one attribute whose payload block carries the
// given length fields.
func hostilePointCloudPayload(tag compressionTag, rawLen, compLen uint64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(containerMagic)
	buf.WriteByte(byte(GeometryPointCloud))
	buf.WriteByte(byte(MethodSequential))
	buf.Write([]byte{1, 0, 0, 0}) // numPoints
	buf.Write([]byte{0, 0, 0, 0}) // numFaces
	buf.WriteByte(1)              // attribute count

	buf.WriteByte(0)                  // id
	buf.WriteByte(byte(ClassGeneric)) // class
	buf.WriteByte(byte(TypeFloat32))  // data type
	buf.WriteByte(1)                  // components
	buf.WriteByte(0)                  // quantization bits

	buf.WriteByte(byte(tag))
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutUvarint(tmp[:], rawLen)])
	buf.Write(tmp[:binary.PutUvarint(tmp[:], compLen)])
	return buf.Bytes()
}

func TestDecodeHostileBlockLengths(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	dec := ctx.NewDecoder()

	t.Run("huge raw length", func(t *testing.T) {
		payload := hostilePointCloudPayload(compressionLZ4, 1<<63, 0)
		_, err := dec.DecodePointCloud(payload)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("stored length past payload end", func(t *testing.T) {
		payload := hostilePointCloudPayload(compressionNone, 4, 1<<40)
		_, err := dec.DecodePointCloud(payload)
		if !errors.Is(err, ErrTruncatedPayload) {
			t.Fatalf("expected ErrTruncatedPayload, got %v", err)
		}
	})
}
