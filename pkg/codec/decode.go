package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decoder deserializes container payloads back into geometries owned
// by its context.
type Decoder struct {
	ctx *Context
}

// GeometryType peeks at the payload header and reports whether it
// holds a mesh or a point cloud.
func (d *Decoder) GeometryType(payload []byte) (GeometryType, error) {
	if len(payload) < len(containerMagic)+1 {
		return 0, ErrTruncatedPayload
	}
	if string(payload[:len(containerMagic)]) != containerMagic {
		return 0, ErrInvalidMagic
	}
	switch g := GeometryType(payload[len(containerMagic)]); g {
	case GeometryMesh, GeometryPointCloud:
		return g, nil
	default:
		return 0, fmt.Errorf("geometry type %d: %w", g, ErrMalformedPayload)
	}
}

// DecodeMesh deserializes an indexed triangle mesh payload. The
// returned mesh must be released by the caller.
func (d *Decoder) DecodeMesh(payload []byte) (*Mesh, error) {
	geom, err := d.decode(payload, GeometryMesh)
	if err != nil {
		return nil, err
	}
	return geom.(*Mesh), nil
}

// DecodePointCloud deserializes a point cloud payload. The returned
// geometry must be released by the caller.
func (d *Decoder) DecodePointCloud(payload []byte) (*PointCloud, error) {
	geom, err := d.decode(payload, GeometryPointCloud)
	if err != nil {
		return nil, err
	}
	return geom.(*PointCloud), nil
}

func (d *Decoder) decode(payload []byte, want GeometryType) (any, error) {
	if d.ctx.closed {
		return nil, ErrContextClosed
	}
	got, err := d.GeometryType(payload)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("payload holds %d, want %d: %w", got, want, ErrWrongGeometry)
	}

	r := &payloadReader{data: payload, off: len(containerMagic) + 1}
	method, err := r.readByte()
	if err != nil {
		return nil, err
	}
	numPoints, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	numFaces, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	numAttrs, err := r.readByte()
	if err != nil {
		return nil, err
	}

	var pc *PointCloud
	var mesh *Mesh
	if want == GeometryMesh {
		mesh, err = d.ctx.NewMesh()
		if err != nil {
			return nil, err
		}
		pc = &mesh.PointCloud
	} else {
		pc, err = d.ctx.NewPointCloud()
		if err != nil {
			return nil, err
		}
	}
	pc.method = EncodingMethod(method)

	// Release the partially built geometry on any decode failure so
	// the context never leaks it.
	fail := func(err error) (any, error) {
		if mesh != nil {
			mesh.Release()
		} else {
			pc.Release()
		}
		return nil, err
	}

	for i := 0; i < int(numAttrs); i++ {
		if err := decodeAttribute(r, pc, int(numPoints)); err != nil {
			return fail(fmt.Errorf("attribute %d: %w", i, err))
		}
	}
	if pc.numPoints != int(numPoints) {
		return fail(fmt.Errorf("decoded %d points, header says %d: %w",
			pc.numPoints, numPoints, ErrTruncatedPayload))
	}

	if want == GeometryMesh {
		raw, err := readPayloadBlock(r)
		if err != nil {
			return fail(fmt.Errorf("faces: %w", err))
		}
		if len(raw) != int(numFaces)*12 {
			return fail(fmt.Errorf("face payload is %d bytes, expected %d: %w",
				len(raw), numFaces*12, ErrTruncatedPayload))
		}
		raw = ungroupBytes4(raw)
		faces := make([][3]uint32, numFaces)
		for f := range faces {
			for v := 0; v < 3; v++ {
				faces[f][v] = binary.LittleEndian.Uint32(raw[(f*3+v)*4:])
			}
		}
		mesh.faces = faces
		return mesh, nil
	}
	return pc, nil
}

func decodeAttribute(r *payloadReader, pc *PointCloud, numPoints int) error {
	id, err := r.readByte()
	if err != nil {
		return err
	}
	class, err := r.readByte()
	if err != nil {
		return err
	}
	dtByte, err := r.readByte()
	if err != nil {
		return err
	}
	comps, err := r.readByte()
	if err != nil {
		return err
	}
	bits, err := r.readByte()
	if err != nil {
		return err
	}

	dt := DataType(dtByte)
	if dt.Size() == 0 || comps == 0 {
		return fmt.Errorf("data type %s with %d components: %w", dt, comps, ErrMalformedPayload)
	}
	if int(id) != len(pc.attributes) {
		return fmt.Errorf("attribute id %d out of order: %w", id, ErrMalformedPayload)
	}
	n := numPoints * int(comps)

	if bits > 0 {
		origin := make([]float32, comps)
		for c := range origin {
			if origin[c], err = r.readFloat32(); err != nil {
				return err
			}
		}
		rng, err := r.readFloat32()
		if err != nil {
			return err
		}
		raw, err := readPayloadBlock(r)
		if err != nil {
			return err
		}
		cellSize := quantCellSize(int(bits))
		if len(raw) != n*cellSize {
			return fmt.Errorf("quantized payload is %d bytes, expected %d: %w",
				len(raw), n*cellSize, ErrTruncatedPayload)
		}
		maxq := uint32(1)<<uint(bits) - 1
		values := make([]float32, n)
		for i := range values {
			var q uint32
			switch cellSize {
			case 1:
				q = uint32(raw[i])
			case 2:
				q = uint32(binary.LittleEndian.Uint16(raw[i*2:]))
			default:
				q = binary.LittleEndian.Uint32(raw[i*4:])
			}
			values[i] = dequantize(q, origin[i%int(comps)], rng, maxq)
		}
		_, err = pc.AddAttributeFloat32(AttributeClass(class), int(comps), values)
		return err
	}

	raw, err := readPayloadBlock(r)
	if err != nil {
		return err
	}
	if len(raw) != n*dt.Size() {
		return fmt.Errorf("payload is %d bytes, expected %d: %w",
			len(raw), n*dt.Size(), ErrTruncatedPayload)
	}
	if dt.Size() == 4 {
		raw = ungroupBytes4(raw)
	}

	cls := AttributeClass(class)
	nc := int(comps)
	switch dt {
	case TypeInt8:
		values := make([]int8, n)
		for i := range values {
			values[i] = int8(raw[i])
		}
		_, err = pc.AddAttributeInt8(cls, nc, values)
	case TypeUint8:
		values := make([]uint8, n)
		copy(values, raw)
		_, err = pc.AddAttributeUint8(cls, nc, values)
	case TypeInt16:
		values := make([]int16, n)
		for i := range values {
			values[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		_, err = pc.AddAttributeInt16(cls, nc, values)
	case TypeUint16:
		values := make([]uint16, n)
		for i := range values {
			values[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		_, err = pc.AddAttributeUint16(cls, nc, values)
	case TypeInt32:
		values := make([]int32, n)
		for i := range values {
			values[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		_, err = pc.AddAttributeInt32(cls, nc, values)
	case TypeUint32:
		values := make([]uint32, n)
		for i := range values {
			values[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		_, err = pc.AddAttributeUint32(cls, nc, values)
	case TypeFloat32:
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		_, err = pc.AddAttributeFloat32(cls, nc, values)
	}
	return err
}

// maxRawBlockLen bounds the declared raw size of one payload block.
// Both length fields are attacker-controlled; anything past this is
// rejected before allocation.
const maxRawBlockLen = 1 << 30

// readPayloadBlock reads one compressed block and returns the raw
// decompressed bytes.
func readPayloadBlock(r *payloadReader) ([]byte, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	rawLen, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	compLen, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if rawLen > maxRawBlockLen {
		return nil, fmt.Errorf("block declares %d raw bytes: %w", rawLen, ErrMalformedPayload)
	}
	if compLen > uint64(len(r.data)-r.off) {
		return nil, fmt.Errorf("block declares %d stored bytes, %d remain: %w",
			compLen, len(r.data)-r.off, ErrTruncatedPayload)
	}
	comp, err := r.readBytes(int(compLen))
	if err != nil {
		return nil, err
	}
	return decompressPayload(comp, compressionTag(tag), int(rawLen))
}

// payloadReader is a bounds-checked cursor over a payload.
type payloadReader struct {
	data []byte
	off  int
}

func (r *payloadReader) readBytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.off {
		return nil, ErrTruncatedPayload
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *payloadReader) readByte() (byte, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *payloadReader) readUint32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *payloadReader) readFloat32() (float32, error) {
	v, err := r.readUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *payloadReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, ErrTruncatedPayload
	}
	r.off += n
	return v, nil
}
