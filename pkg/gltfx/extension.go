// Package gltfx provides glTF-side helpers for the compression
// pipeline: the compression extension records and packed accessor
// data extraction on top of github.com/qmuntal/gltf.
package gltfx

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

// Extension identifiers understood by this module.
const (
	// ExtensionDracoMesh marks a primitive whose geometry lives in a
	// compressed payload instead of its accessors' buffer views.
	ExtensionDracoMesh = "KHR_draco_mesh_compression"

	// ExtensionDracoAnimation is an asset-level array describing
	// compressed animation timelines.
	ExtensionDracoAnimation = "Draco_animation_compression"
)

// DracoMesh is the per-primitive KHR_draco_mesh_compression record.
// Attributes maps a primitive semantic (POSITION, NORMAL, ...) to a
// codec-local attribute id. The id space is private to one payload
// and unrelated to accessor indices.
type DracoMesh struct {
	BufferView uint32            `json:"bufferView"`
	Attributes map[string]uint32 `json:"attributes"`
}

// DracoAnimation is one entry of the asset-level
// Draco_animation_compression array. Outputs lists every sampler
// output accessor sharing the Input timeline; AttributesID holds the
// codec-local attribute id of each output, index-parallel to Outputs
// (the timestamp attribute is always codec id 0).
type DracoAnimation struct {
	Input        uint32   `json:"input"`
	Outputs      []uint32 `json:"outputs"`
	AttributesID []uint32 `json:"attributesId"`
	BufferView   uint32   `json:"bufferView"`
}

func init() {
	gltf.RegisterExtension(ExtensionDracoMesh, UnmarshalDracoMesh)
	gltf.RegisterExtension(ExtensionDracoAnimation, UnmarshalDracoAnimation)
}

// UnmarshalDracoMesh decodes a KHR_draco_mesh_compression record.
func UnmarshalDracoMesh(data []byte) (any, error) {
	ext := new(DracoMesh)
	if err := json.Unmarshal(data, ext); err != nil {
		return nil, err
	}
	return ext, nil
}

// UnmarshalDracoAnimation decodes the Draco_animation_compression
// entry array.
func UnmarshalDracoAnimation(data []byte) (any, error) {
	var ext []*DracoAnimation
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, err
	}
	return ext, nil
}
