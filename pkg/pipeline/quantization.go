package pipeline

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/dracopack/pkg/codec"
)

// ErrPositionNotVec3 reports a POSITION accessor that is not a
// three-component vector, which makes a unified bounding box
// undefined.
var ErrPositionNotVec3 = errors.New("unified quantization requires VEC3 position accessors")

// quantizationPlan carries the resolved quantization parameters of
// one compress pass. When unified is set, every primitive's
// positions quantize against the shared origin and cube range
// instead of their own local box, so primitive seams stay closed.
type quantizationPlan struct {
	opts    Options
	unified bool
	origin  [3]float32
	rng     float32
}

// planQuantization resolves the per-class bit depths and, when
// unified quantization is requested, scans every POSITION accessor
// in the document to accumulate one component-wise bounding box. The
// resulting range is the largest axis span: a single cube covering
// all positions.
func planQuantization(doc *gltf.Document, opts Options) (*quantizationPlan, error) {
	plan := &quantizationPlan{opts: opts}
	if !opts.UnifiedQuantization || opts.QuantizePositionBits == 0 {
		return plan, nil
	}

	mins := [3]float32{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	maxs := [3]float32{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	found := false

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			accID, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			if int(accID) >= len(doc.Accessors) {
				return nil, fmt.Errorf("mesh %d primitive %d position accessor %d: %w",
					mi, pi, accID, ErrAccessorOutOfRange)
			}
			acc := doc.Accessors[accID]
			if acc.Type != gltf.AccessorVec3 {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, ErrPositionNotVec3)
			}

			if len(acc.Min) == 3 && len(acc.Max) == 3 {
				for c := 0; c < 3; c++ {
					mins[c] = math32.Min(mins[c], acc.Min[c])
					maxs[c] = math32.Max(maxs[c], acc.Max[c])
				}
			} else {
				positions, err := modeler.ReadPosition(doc, acc, nil)
				if err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d: read positions: %w", mi, pi, err)
				}
				for _, p := range positions {
					for c := 0; c < 3; c++ {
						mins[c] = math32.Min(mins[c], p[c])
						maxs[c] = math32.Max(maxs[c], p[c])
					}
				}
			}
			found = true
		}
	}
	if !found {
		return plan, nil
	}

	plan.unified = true
	plan.origin = mins
	plan.rng = math32.Max(maxs[0]-mins[0], math32.Max(maxs[1]-mins[1], maxs[2]-mins[2]))
	if plan.rng <= 0 {
		plan.rng = 1
	}
	return plan, nil
}

// apply configures an encoder with the plan's speed and bit depths.
func (plan *quantizationPlan) apply(enc *codec.Encoder) error {
	enc.SetSpeed(plan.opts.speed())

	o := plan.opts
	if plan.unified {
		if err := enc.SetExplicitQuantization(codec.ClassPosition, o.QuantizePositionBits, plan.origin[:], plan.rng); err != nil {
			return err
		}
	} else if err := enc.SetQuantization(codec.ClassPosition, o.QuantizePositionBits); err != nil {
		return err
	}

	classes := []struct {
		class codec.AttributeClass
		bits  int
	}{
		{codec.ClassNormal, o.QuantizeNormalBits},
		{codec.ClassTexCoord, o.QuantizeTexcoordBits},
		{codec.ClassColor, o.QuantizeColorBits},
		{codec.ClassGeneric, o.QuantizeGenericBits},
	}
	for _, c := range classes {
		if err := enc.SetQuantization(c.class, c.bits); err != nil {
			return err
		}
	}
	return nil
}
