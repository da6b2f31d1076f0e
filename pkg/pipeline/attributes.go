package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/dracopack/pkg/codec"
	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// ErrUnsupportedAttributeType reports an accessor component type the
// codec has no typed operation for. Never silently defaulted.
var ErrUnsupportedAttributeType = errors.New("unsupported attribute type")

// attributeOp binds one glTF component type to the codec's typed
// add operation and element type.
type attributeOp struct {
	dataType codec.DataType
	add      func(pc *codec.PointCloud, class codec.AttributeClass, components int, data *gltfx.AccessorData) (int, error)
}

// attributeOps is the static dispatch table for the encode
// direction, keyed by accessor component type.
var attributeOps = map[gltf.ComponentType]attributeOp{
	gltf.ComponentByte: {codec.TypeInt8, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeInt8(class, components, d.Int8)
	}},
	gltf.ComponentUbyte: {codec.TypeUint8, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeUint8(class, components, d.Uint8)
	}},
	gltf.ComponentShort: {codec.TypeInt16, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeInt16(class, components, d.Int16)
	}},
	gltf.ComponentUshort: {codec.TypeUint16, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeUint16(class, components, d.Uint16)
	}},
	gltf.ComponentUint: {codec.TypeUint32, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeUint32(class, components, d.Uint32)
	}},
	gltf.ComponentFloat: {codec.TypeFloat32, func(pc *codec.PointCloud, class codec.AttributeClass, components int, d *gltfx.AccessorData) (int, error) {
		return pc.AddAttributeFloat32(class, components, d.Float32)
	}},
}

// attributeGet binds one codec element type to the typed
// get-all-points operation and the accessor component type it maps
// back to.
type attributeGet struct {
	componentType gltf.ComponentType
	get           func(a *codec.Attribute) *gltfx.AccessorData
}

// attributeGets is the static dispatch table for the decode
// direction, keyed by codec element type.
var attributeGets = map[codec.DataType]attributeGet{
	codec.TypeInt8: {gltf.ComponentByte, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentByte, Components: a.Components(), Count: a.Count(), Int8: a.Int8Values()}
	}},
	codec.TypeUint8: {gltf.ComponentUbyte, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentUbyte, Components: a.Components(), Count: a.Count(), Uint8: a.Uint8Values()}
	}},
	codec.TypeInt16: {gltf.ComponentShort, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentShort, Components: a.Components(), Count: a.Count(), Int16: a.Int16Values()}
	}},
	codec.TypeUint16: {gltf.ComponentUshort, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentUshort, Components: a.Components(), Count: a.Count(), Uint16: a.Uint16Values()}
	}},
	codec.TypeUint32: {gltf.ComponentUint, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentUint, Components: a.Components(), Count: a.Count(), Uint32: a.Uint32Values()}
	}},
	codec.TypeFloat32: {gltf.ComponentFloat, func(a *codec.Attribute) *gltfx.AccessorData {
		return &gltfx.AccessorData{ComponentType: gltf.ComponentFloat, Components: a.Components(), Count: a.Count(), Float32: a.Float32Values()}
	}},
}

// addOp resolves the encode operation for a component type.
func addOp(ct gltf.ComponentType) (attributeOp, error) {
	op, ok := attributeOps[ct]
	if !ok {
		return attributeOp{}, fmt.Errorf("component type %d: %w", ct, ErrUnsupportedAttributeType)
	}
	return op, nil
}

// getOp resolves the decode operation for a codec element type.
func getOp(dt codec.DataType) (attributeGet, error) {
	op, ok := attributeGets[dt]
	if !ok {
		return attributeGet{}, fmt.Errorf("element type %s: %w", dt, ErrUnsupportedAttributeType)
	}
	return op, nil
}

// baseSemantic strips a numeric set suffix: TEXCOORD_1 -> TEXCOORD,
// JOINTS_0 -> JOINTS. Semantics without a suffix pass through.
func baseSemantic(semantic string) string {
	i := strings.LastIndexByte(semantic, '_')
	if i <= 0 {
		return semantic
	}
	suffix := semantic[i+1:]
	if suffix == "" {
		return semantic
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return semantic
		}
	}
	return semantic[:i]
}

// attributeClass maps a primitive semantic to its codec attribute
// class. Set-indexed semantics share the class of their base name;
// everything unrecognized (TANGENT, JOINTS, WEIGHTS, vendor
// semantics) is generic.
func attributeClass(semantic string) codec.AttributeClass {
	switch baseSemantic(semantic) {
	case "POSITION":
		return codec.ClassPosition
	case "NORMAL":
		return codec.ClassNormal
	case "TEXCOORD":
		return codec.ClassTexCoord
	case "COLOR":
		return codec.ClassColor
	default:
		return codec.ClassGeneric
	}
}

// sortedSemantics returns the attribute semantics in a stable order.
func sortedSemantics[V any](attrs map[string]V) []string {
	out := make([]string, 0, len(attrs))
	for sem := range attrs {
		out = append(out, sem)
	}
	sort.Strings(out)
	return out
}
