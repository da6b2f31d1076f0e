// Package codec implements the geometry compression boundary of the
// pipeline: an attribute/mesh model mirroring the compressed payload,
// an encoder and decoder for the container format, and an explicit
// codec context owning the lifecycle of every geometry it mints.
//
// The container format quantizes numeric attributes to configured bit
// depths and defers byte compression to lz4 or zstd; it performs no
// entropy modeling or connectivity prediction of its own.
package codec

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrInvalidMagic       = errors.New("invalid container magic")
	ErrMalformedPayload   = errors.New("malformed container payload")
	ErrTruncatedPayload   = errors.New("truncated container payload")
	ErrContextClosed      = errors.New("codec context is closed")
	ErrReleased           = errors.New("geometry already released")
	ErrNoAttributes       = errors.New("geometry has no attributes")
	ErrPointCountMismatch = errors.New("attribute point count mismatch")
	ErrWrongGeometry      = errors.New("payload holds a different geometry type")
	ErrBadQuantization    = errors.New("quantization bits out of range")
)

// DataType identifies the numeric element type of an attribute.
type DataType uint8

// Supported attribute element types.
const (
	TypeInvalid DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeFloat32
)

// Size returns the byte size of one element, or 0 for TypeInvalid.
func (t DataType) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	default:
		return 0
	}
}

// String returns a human-readable type name.
func (t DataType) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeFloat32:
		return "float32"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// AttributeClass groups attributes for quantization purposes.
type AttributeClass uint8

// Attribute classes.
const (
	ClassGeneric AttributeClass = iota
	ClassPosition
	ClassNormal
	ClassColor
	ClassTexCoord
)

// String returns a human-readable class name.
func (c AttributeClass) String() string {
	switch c {
	case ClassPosition:
		return "position"
	case ClassNormal:
		return "normal"
	case ClassColor:
		return "color"
	case ClassTexCoord:
		return "texcoord"
	case ClassGeneric:
		return "generic"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// GeometryType distinguishes indexed meshes from point clouds.
type GeometryType uint8

// Geometry types.
const (
	GeometryMesh GeometryType = iota
	GeometryPointCloud
)

// EncodingMethod selects how vertex order is treated. The container
// codec always preserves input order, but the method is recorded in
// the payload so order-sensitive callers (morph targets) can assert
// it on decode.
type EncodingMethod uint8

// Encoding methods.
const (
	// MethodEdgebreaker permits connectivity-driven vertex reordering.
	MethodEdgebreaker EncodingMethod = iota
	// MethodSequential preserves input vertex order exactly.
	MethodSequential
)

// Context owns every geometry, encoder, and decoder minted from it.
// Create one per pipeline run and Close it when the run ends; Close
// fails if any geometry was not released, surfacing leaks that would
// matter with a native-backed codec.
type Context struct {
	closed bool
	live   int
}

// NewContext creates a codec context.
func NewContext() *Context {
	return &Context{}
}

// Close shuts the context down. It returns an error if geometries
// minted from it have not been released.
func (c *Context) Close() error {
	if c.closed {
		return ErrContextClosed
	}
	c.closed = true
	if c.live != 0 {
		return fmt.Errorf("codec context closed with %d unreleased geometries", c.live)
	}
	return nil
}

// NewMesh mints an empty mesh owned by this context.
func (c *Context) NewMesh() (*Mesh, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	c.live++
	m := &Mesh{}
	m.ctx = c
	return m, nil
}

// NewPointCloud mints an empty point cloud owned by this context.
func (c *Context) NewPointCloud() (*PointCloud, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	c.live++
	return &PointCloud{ctx: c}, nil
}

// NewEncoder creates an encoder with default settings: speed 5,
// edgebreaker method, no quantization.
func (c *Context) NewEncoder() *Encoder {
	return &Encoder{
		ctx:       c,
		speed:     5,
		classBits: make(map[AttributeClass]int),
		idBits:    make(map[int]int),
		explicit:  make(map[AttributeClass]explicitQuant),
	}
}

// NewDecoder creates a decoder. Geometries it produces are owned by
// the context and must be released like any other.
func (c *Context) NewDecoder() *Decoder {
	return &Decoder{ctx: c}
}
