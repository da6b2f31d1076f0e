package gltfx

import (
	"testing"
)

func TestUnmarshalDracoMesh(t *testing.T) {
	raw := []byte(`{"bufferView":3,"attributes":{"POSITION":0,"NORMAL":1,"TEXCOORD_0":2}}`)

	got, err := UnmarshalDracoMesh(raw)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	ext, ok := got.(*DracoMesh)
	if !ok {
		t.Fatalf("expected *DracoMesh, got %T", got)
	}
	if ext.BufferView != 3 {
		t.Errorf("expected buffer view 3, got %d", ext.BufferView)
	}
	if len(ext.Attributes) != 3 {
		t.Errorf("expected 3 attributes, got %d", len(ext.Attributes))
	}
	if ext.Attributes["POSITION"] != 0 || ext.Attributes["NORMAL"] != 1 || ext.Attributes["TEXCOORD_0"] != 2 {
		t.Errorf("attribute mapping wrong: %v", ext.Attributes)
	}
}

func TestUnmarshalDracoMeshInvalid(t *testing.T) {
	if _, err := UnmarshalDracoMesh([]byte(`{"bufferView":"x"}`)); err == nil {
		t.Error("expected error for non-numeric buffer view")
	}
}

func TestUnmarshalDracoAnimation(t *testing.T) {
	raw := []byte(`[
		{"input":4,"outputs":[5,6],"attributesId":[1,2],"bufferView":7},
		{"input":8,"outputs":[9],"attributesId":[1],"bufferView":10}
	]`)

	got, err := UnmarshalDracoAnimation(raw)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	records, ok := got.([]*DracoAnimation)
	if !ok {
		t.Fatalf("expected []*DracoAnimation, got %T", got)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.Input != 4 || first.BufferView != 7 {
		t.Errorf("first record wrong: %+v", first)
	}
	if len(first.Outputs) != 2 || first.Outputs[0] != 5 || first.Outputs[1] != 6 {
		t.Errorf("first record outputs wrong: %v", first.Outputs)
	}
	if len(first.AttributesID) != 2 || first.AttributesID[0] != 1 {
		t.Errorf("first record attribute ids wrong: %v", first.AttributesID)
	}
}
