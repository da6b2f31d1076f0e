package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// containerMagic identifies (and versions) the payload format.
const containerMagic = "GCM1"

// maxQuantBits bounds attribute quantization bit depths.
const maxQuantBits = 30

// Encoder serializes a geometry into a compressed container payload.
// Configure quantization and speed before encoding; an encoder can be
// reused across geometries with the same settings.
type Encoder struct {
	ctx       *Context
	speed     int
	method    EncodingMethod
	classBits map[AttributeClass]int
	idBits    map[int]int
	explicit  map[AttributeClass]explicitQuant
}

// SetSpeed sets the speed/ratio trade-off in 0..10. Higher is
// faster: speeds of 7 and above use lz4 for payload bytes, lower
// speeds use zstd. Values outside the range are clamped.
func (e *Encoder) SetSpeed(speed int) {
	if speed < 0 {
		speed = 0
	}
	if speed > 10 {
		speed = 10
	}
	e.speed = speed
}

// SetEncodingMethod selects the vertex-order treatment recorded in
// the payload. MethodSequential guarantees point order survives the
// round trip.
func (e *Encoder) SetEncodingMethod(m EncodingMethod) {
	e.method = m
}

// SetQuantization sets the bit depth for every float32 attribute of
// the given class. Zero disables quantization for the class.
func (e *Encoder) SetQuantization(class AttributeClass, bits int) error {
	if bits < 0 || bits > maxQuantBits {
		return fmt.Errorf("%s bits %d: %w", class, bits, ErrBadQuantization)
	}
	e.classBits[class] = bits
	return nil
}

// SetQuantizationByID sets the bit depth for one attribute by its
// codec-local id, overriding any class setting.
func (e *Encoder) SetQuantizationByID(id, bits int) error {
	if bits < 0 || bits > maxQuantBits {
		return fmt.Errorf("attribute %d bits %d: %w", id, bits, ErrBadQuantization)
	}
	e.idBits[id] = bits
	return nil
}

// SetExplicitQuantization sets the bit depth for a class together
// with a caller-supplied origin corner and uniform range, instead of
// the per-geometry range the encoder would otherwise derive.
func (e *Encoder) SetExplicitQuantization(class AttributeClass, bits int, origin []float32, rng float32) error {
	if bits <= 0 || bits > maxQuantBits {
		return fmt.Errorf("%s bits %d: %w", class, bits, ErrBadQuantization)
	}
	if rng <= 0 {
		return fmt.Errorf("%s range %v: %w", class, rng, ErrBadQuantization)
	}
	e.explicit[class] = explicitQuant{bits: bits, origin: origin, rng: rng}
	return nil
}

// EncodeMesh serializes an indexed triangle mesh.
func (e *Encoder) EncodeMesh(m *Mesh) ([]byte, error) {
	return e.encode(&m.PointCloud, GeometryMesh, m.faces)
}

// EncodePointCloud serializes an unindexed geometry.
func (e *Encoder) EncodePointCloud(p *PointCloud) ([]byte, error) {
	return e.encode(p, GeometryPointCloud, nil)
}

func (e *Encoder) encode(p *PointCloud, geom GeometryType, faces [][3]uint32) ([]byte, error) {
	if e.ctx.closed {
		return nil, ErrContextClosed
	}
	if p.released {
		return nil, ErrReleased
	}
	if len(p.attributes) == 0 {
		return nil, ErrNoAttributes
	}
	if len(p.attributes) > 255 {
		return nil, fmt.Errorf("geometry has %d attributes, container allows 255", len(p.attributes))
	}

	buf := new(bytes.Buffer)
	buf.WriteString(containerMagic)
	buf.WriteByte(byte(geom))
	buf.WriteByte(byte(e.method))
	binary.Write(buf, binary.LittleEndian, uint32(p.numPoints))
	binary.Write(buf, binary.LittleEndian, uint32(len(faces)))
	buf.WriteByte(byte(len(p.attributes)))

	for _, a := range p.attributes {
		if err := e.encodeAttribute(buf, a); err != nil {
			return nil, fmt.Errorf("attribute %d (%s): %w", a.id, a.class, err)
		}
	}

	if geom == GeometryMesh {
		raw := make([]byte, 0, len(faces)*12)
		var cell [4]byte
		for _, f := range faces {
			for _, idx := range f {
				binary.LittleEndian.PutUint32(cell[:], idx)
				raw = append(raw, cell[:]...)
			}
		}
		writePayload(buf, groupBytes4(raw), e.preferredTag())
	}

	return buf.Bytes(), nil
}

// quantPlan resolves the effective quantization of one attribute:
// per-id override, then explicit class setting, then class bits.
// Only float32 attributes quantize; everything else passes through.
func (e *Encoder) quantPlan(a *Attribute) (int, []float32, float32, error) {
	if a.dataType != TypeFloat32 {
		return 0, nil, 0, nil
	}
	if bits, ok := e.idBits[a.id]; ok {
		if bits == 0 {
			return 0, nil, 0, nil
		}
		origin, rng := computeRange(a.float32s, a.components)
		return bits, origin, rng, nil
	}
	if eq, ok := e.explicit[a.class]; ok {
		if len(eq.origin) != a.components {
			return 0, nil, 0, fmt.Errorf("explicit origin has %d components, attribute has %d",
				len(eq.origin), a.components)
		}
		return eq.bits, eq.origin, eq.rng, nil
	}
	bits := e.classBits[a.class]
	if bits == 0 {
		return 0, nil, 0, nil
	}
	origin, rng := computeRange(a.float32s, a.components)
	return bits, origin, rng, nil
}

func (e *Encoder) encodeAttribute(buf *bytes.Buffer, a *Attribute) error {
	bits, origin, rng, err := e.quantPlan(a)
	if err != nil {
		return err
	}

	buf.WriteByte(byte(a.id))
	buf.WriteByte(byte(a.class))
	buf.WriteByte(byte(a.dataType))
	buf.WriteByte(byte(a.components))
	buf.WriteByte(byte(bits))

	var raw []byte
	if bits > 0 {
		binary.Write(buf, binary.LittleEndian, origin)
		binary.Write(buf, binary.LittleEndian, rng)

		maxq := uint32(1)<<uint(bits) - 1
		cellSize := quantCellSize(bits)
		raw = make([]byte, 0, len(a.float32s)*cellSize)
		var cell [4]byte
		for i, v := range a.float32s {
			q := quantize(v, origin[i%a.components], rng, maxq)
			binary.LittleEndian.PutUint32(cell[:], q)
			raw = append(raw, cell[:cellSize]...)
		}
	} else {
		raw = attributeBytes(a)
		if a.dataType.Size() == 4 {
			raw = groupBytes4(raw)
		}
	}

	writePayload(buf, raw, e.preferredTag())
	return nil
}

func (e *Encoder) preferredTag() compressionTag {
	if e.speed >= 7 {
		return compressionLZ4
	}
	return compressionZstd
}

// writePayload emits one compressed block: tag, raw length,
// compressed length, bytes.
func writePayload(buf *bytes.Buffer, raw []byte, preferred compressionTag) {
	tag, comp := compressPayload(raw, preferred)
	buf.WriteByte(byte(tag))
	writeUvarint(buf, uint64(len(raw)))
	writeUvarint(buf, uint64(len(comp)))
	buf.Write(comp)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// attributeBytes packs the attribute's values little-endian.
func attributeBytes(a *Attribute) []byte {
	size := a.dataType.Size()
	out := make([]byte, 0, a.count*a.components*size)
	var cell [4]byte
	switch a.dataType {
	case TypeInt8:
		for _, v := range a.int8s {
			out = append(out, byte(v))
		}
	case TypeUint8:
		out = append(out, a.uint8s...)
	case TypeInt16:
		for _, v := range a.int16s {
			binary.LittleEndian.PutUint16(cell[:2], uint16(v))
			out = append(out, cell[:2]...)
		}
	case TypeUint16:
		for _, v := range a.uint16s {
			binary.LittleEndian.PutUint16(cell[:2], v)
			out = append(out, cell[:2]...)
		}
	case TypeInt32:
		for _, v := range a.int32s {
			binary.LittleEndian.PutUint32(cell[:], uint32(v))
			out = append(out, cell[:]...)
		}
	case TypeUint32:
		for _, v := range a.uint32s {
			binary.LittleEndian.PutUint32(cell[:], v)
			out = append(out, cell[:]...)
		}
	case TypeFloat32:
		for _, v := range a.float32s {
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			out = append(out, cell[:]...)
		}
	}
	return out
}
