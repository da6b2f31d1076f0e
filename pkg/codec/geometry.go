package codec

import "fmt"

// Attribute is one named value stream of a geometry: count points of
// components elements each, stored in exactly one typed slice
// matching its DataType.
type Attribute struct {
	id         int
	class      AttributeClass
	dataType   DataType
	components int
	count      int

	int8s    []int8
	uint8s   []uint8
	int16s   []int16
	uint16s  []uint16
	int32s   []int32
	uint32s  []uint32
	float32s []float32
}

// ID returns the codec-local attribute id.
func (a *Attribute) ID() int { return a.id }

// Class returns the attribute's quantization class.
func (a *Attribute) Class() AttributeClass { return a.class }

// DataType returns the element type.
func (a *Attribute) DataType() DataType { return a.dataType }

// Components returns the number of elements per point.
func (a *Attribute) Components() int { return a.components }

// Count returns the number of points.
func (a *Attribute) Count() int { return a.count }

// Typed accessors. Each returns the backing slice for its type, nil
// when the attribute holds a different type.

func (a *Attribute) Int8Values() []int8       { return a.int8s }
func (a *Attribute) Uint8Values() []uint8     { return a.uint8s }
func (a *Attribute) Int16Values() []int16     { return a.int16s }
func (a *Attribute) Uint16Values() []uint16   { return a.uint16s }
func (a *Attribute) Int32Values() []int32     { return a.int32s }
func (a *Attribute) Uint32Values() []uint32   { return a.uint32s }
func (a *Attribute) Float32Values() []float32 { return a.float32s }

// PointCloud is an unindexed geometry: a set of attributes sharing
// one point count.
type PointCloud struct {
	ctx        *Context
	released   bool
	numPoints  int
	method     EncodingMethod
	attributes []*Attribute
}

// EncodingMethod reports the vertex-order treatment recorded in the
// payload this geometry was decoded from. Zero for built geometries.
func (p *PointCloud) EncodingMethod() EncodingMethod { return p.method }

// NumPoints returns the shared point count of all attributes.
func (p *PointCloud) NumPoints() int { return p.numPoints }

// NumAttributes returns the number of attributes added so far.
func (p *PointCloud) NumAttributes() int { return len(p.attributes) }

// Attribute returns the attribute with the given codec-local id, or
// nil if no such attribute exists.
func (p *PointCloud) Attribute(id int) *Attribute {
	if id < 0 || id >= len(p.attributes) {
		return nil
	}
	return p.attributes[id]
}

// AttributeByClass returns the first attribute of the given class,
// or nil if the geometry has none.
func (p *PointCloud) AttributeByClass(class AttributeClass) *Attribute {
	for _, a := range p.attributes {
		if a.class == class {
			return a
		}
	}
	return nil
}

// Release returns the geometry's storage to the context. Further use
// of the geometry or its attributes is invalid.
func (p *PointCloud) Release() {
	if p.released {
		return
	}
	p.released = true
	p.attributes = nil
	p.ctx.live--
}

func (p *PointCloud) addAttribute(a *Attribute) (int, error) {
	if p.released {
		return 0, ErrReleased
	}
	if a.components <= 0 {
		return 0, fmt.Errorf("attribute needs at least one component, got %d", a.components)
	}
	if len(p.attributes) == 0 {
		p.numPoints = a.count
	} else if a.count != p.numPoints {
		return 0, fmt.Errorf("attribute has %d points, geometry has %d: %w",
			a.count, p.numPoints, ErrPointCountMismatch)
	}
	a.id = len(p.attributes)
	p.attributes = append(p.attributes, a)
	return a.id, nil
}

func pointCount(totalValues, components int) (int, error) {
	if components <= 0 {
		return 0, fmt.Errorf("invalid component count %d", components)
	}
	if totalValues%components != 0 {
		return 0, fmt.Errorf("%d values do not divide into %d components", totalValues, components)
	}
	return totalValues / components, nil
}

// AddAttributeInt8 adds an int8 attribute and returns its local id.
func (p *PointCloud) AddAttributeInt8(class AttributeClass, components int, values []int8) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeInt8, components: components, count: count, int8s: values})
}

// AddAttributeUint8 adds a uint8 attribute and returns its local id.
func (p *PointCloud) AddAttributeUint8(class AttributeClass, components int, values []uint8) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeUint8, components: components, count: count, uint8s: values})
}

// AddAttributeInt16 adds an int16 attribute and returns its local id.
func (p *PointCloud) AddAttributeInt16(class AttributeClass, components int, values []int16) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeInt16, components: components, count: count, int16s: values})
}

// AddAttributeUint16 adds a uint16 attribute and returns its local id.
func (p *PointCloud) AddAttributeUint16(class AttributeClass, components int, values []uint16) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeUint16, components: components, count: count, uint16s: values})
}

// AddAttributeInt32 adds an int32 attribute and returns its local id.
func (p *PointCloud) AddAttributeInt32(class AttributeClass, components int, values []int32) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeInt32, components: components, count: count, int32s: values})
}

// AddAttributeUint32 adds a uint32 attribute and returns its local id.
func (p *PointCloud) AddAttributeUint32(class AttributeClass, components int, values []uint32) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeUint32, components: components, count: count, uint32s: values})
}

// AddAttributeFloat32 adds a float32 attribute and returns its local id.
func (p *PointCloud) AddAttributeFloat32(class AttributeClass, components int, values []float32) (int, error) {
	count, err := pointCount(len(values), components)
	if err != nil {
		return 0, err
	}
	return p.addAttribute(&Attribute{class: class, dataType: TypeFloat32, components: components, count: count, float32s: values})
}

// Mesh is an indexed triangle geometry: a point cloud plus a face
// list of vertex index triples.
type Mesh struct {
	PointCloud
	faces [][3]uint32
}

// NumFaces returns the number of triangle faces.
func (m *Mesh) NumFaces() int { return len(m.faces) }

// Face returns the i-th face's three vertex indices.
func (m *Mesh) Face(i int) [3]uint32 { return m.faces[i] }

// AddFace appends one triangle face.
func (m *Mesh) AddFace(f [3]uint32) { m.faces = append(m.faces, f) }

// SetFaces replaces the whole face list.
func (m *Mesh) SetFaces(faces [][3]uint32) { m.faces = faces }

// Release returns the mesh's storage to the context.
func (m *Mesh) Release() {
	if m.released {
		return
	}
	m.faces = nil
	m.PointCloud.Release()
}
