package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Faultbox/dracopack/pkg/codec"
)

// WritePointsPLY dumps the point cloud to path as ASCII PLY,
// creating parent directories as needed.
func WritePointsPLY(path string, pc *codec.PointCloud) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := PointsPLY(w, pc); err != nil {
		return err
	}
	return w.Flush()
}

// PointsPLY writes the point cloud as ASCII PLY. Every float32
// attribute contributes properties named attr<id>_<component>; the
// position attribute, when present, contributes x, y, z instead.
func PointsPLY(w io.Writer, pc *codec.PointCloud) error {
	var attrs []*codec.Attribute
	for i := 0; i < pc.NumAttributes(); i++ {
		a := pc.Attribute(i)
		if a != nil && a.DataType() == codec.TypeFloat32 {
			attrs = append(attrs, a)
		}
	}
	if len(attrs) == 0 {
		return ErrNoPositions
	}

	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n", pc.NumPoints()); err != nil {
		return err
	}
	posAxes := [3]string{"x", "y", "z"}
	for _, a := range attrs {
		for c := 0; c < a.Components(); c++ {
			name := fmt.Sprintf("attr%d_%d", a.ID(), c)
			if a.Class() == codec.ClassPosition && c < len(posAxes) {
				name = posAxes[c]
			}
			if _, err := fmt.Fprintf(w, "property float %s\n", name); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintln(w, "end_header"); err != nil {
		return err
	}

	for i := 0; i < pc.NumPoints(); i++ {
		first := true
		for _, a := range attrs {
			values := a.Float32Values()
			comps := a.Components()
			for c := 0; c < comps; c++ {
				if !first {
					if _, err := fmt.Fprint(w, " "); err != nil {
						return err
					}
				}
				first = false
				if _, err := fmt.Fprintf(w, "%g", values[i*comps+c]); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
