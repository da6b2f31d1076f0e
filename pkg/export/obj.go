// Package export writes debug dumps of decoded geometry in plain
// text formats that any viewer opens. The dumps are never read back.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Faultbox/dracopack/pkg/codec"
)

// ErrNoPositions reports geometry without a position attribute,
// which neither format can represent.
var ErrNoPositions = errors.New("geometry has no position attribute")

// WriteMeshOBJ dumps the mesh to path as Wavefront OBJ, creating
// parent directories as needed.
func WriteMeshOBJ(path string, m *codec.Mesh) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := MeshOBJ(w, m); err != nil {
		return err
	}
	return w.Flush()
}

// MeshOBJ writes the mesh as Wavefront OBJ: positions, then normals
// and texture coordinates when present, then faces. OBJ indices are
// one-based.
func MeshOBJ(w io.Writer, m *codec.Mesh) error {
	pos := m.AttributeByClass(codec.ClassPosition)
	if pos == nil || pos.DataType() != codec.TypeFloat32 {
		return ErrNoPositions
	}
	if err := writeVectors(w, "v", pos); err != nil {
		return err
	}

	normal := m.AttributeByClass(codec.ClassNormal)
	hasNormal := normal != nil && normal.DataType() == codec.TypeFloat32
	if hasNormal {
		if err := writeVectors(w, "vn", normal); err != nil {
			return err
		}
	}
	tex := m.AttributeByClass(codec.ClassTexCoord)
	hasTex := tex != nil && tex.DataType() == codec.TypeFloat32
	if hasTex {
		if err := writeVectors(w, "vt", tex); err != nil {
			return err
		}
	}

	for i := 0; i < m.NumFaces(); i++ {
		face := m.Face(i)
		if _, err := fmt.Fprint(w, "f"); err != nil {
			return err
		}
		for _, v := range face {
			ref := objRef(v+1, hasTex, hasNormal)
			if _, err := fmt.Fprintf(w, " %s", ref); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// objRef formats a one-based vertex reference. All attributes share
// the vertex index, so the slots repeat the same number.
func objRef(i uint32, hasTex, hasNormal bool) string {
	switch {
	case hasTex && hasNormal:
		return fmt.Sprintf("%d/%d/%d", i, i, i)
	case hasTex:
		return fmt.Sprintf("%d/%d", i, i)
	case hasNormal:
		return fmt.Sprintf("%d//%d", i, i)
	default:
		return fmt.Sprintf("%d", i)
	}
}

func writeVectors(w io.Writer, prefix string, a *codec.Attribute) error {
	values := a.Float32Values()
	comps := a.Components()
	for i := 0; i < a.Count(); i++ {
		if _, err := fmt.Fprint(w, prefix); err != nil {
			return err
		}
		for c := 0; c < comps; c++ {
			if _, err := fmt.Fprintf(w, " %g", values[i*comps+c]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
