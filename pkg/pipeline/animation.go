package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/dracopack/pkg/codec"
	"github.com/Faultbox/dracopack/pkg/export"
	"github.com/Faultbox/dracopack/pkg/gltfx"
)

// Animation pass errors.
var (
	// ErrAnimationTopology reports sampler wiring the pass cannot
	// compress: an accessor serving as both a timeline and a
	// keyframe stream, or one keyframe stream driven by two
	// different timelines.
	ErrAnimationTopology = errors.New("inconsistent animation sampler topology")

	// ErrNotFloatAccessor reports an animation accessor whose
	// component type is not float32.
	ErrNotFloatAccessor = errors.New("animation accessor is not float32")
)

// timeline is one sampler input accessor together with every output
// accessor keyed on it, in first-appearance order across the
// document's animations.
type timeline struct {
	input   uint32
	outputs []uint32
}

// CompressAnimations packs every animation timeline into one point
// cloud payload per input accessor and records the mapping in the
// asset-level extension array. Sampler inputs and outputs keep their
// accessors but lose their buffer views. The first error aborts the
// pass with the document partially rewritten.
func (p *Pipeline) CompressAnimations(doc *gltf.Document, opts AnimationOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	timelines, err := collectTimelines(doc)
	if err != nil {
		return err
	}
	if len(timelines) == 0 {
		p.log.Info("animation compress pass finished", zap.Int("timelines", 0))
		return nil
	}

	w := &rewriter{doc: doc}
	records := make([]*gltfx.DracoAnimation, 0, len(timelines))
	for _, tl := range timelines {
		rec, err := p.compressTimeline(doc, w, tl, opts)
		if err != nil {
			return fmt.Errorf("timeline input %d: %w", tl.input, err)
		}
		records = append(records, rec)
	}

	if doc.Extensions == nil {
		doc.Extensions = gltf.Extensions{}
	}
	doc.Extensions[gltfx.ExtensionDracoAnimation] = records
	declareExtension(doc, gltfx.ExtensionDracoAnimation, true)
	w.pruneUnused()

	p.log.Info("animation compress pass finished", zap.Int("timelines", len(records)))
	return nil
}

// collectTimelines groups samplers by input accessor, preserving the
// order inputs first appear, and rejects wiring that cannot round
// trip through one payload per timeline.
func collectTimelines(doc *gltf.Document) ([]*timeline, error) {
	byInput := make(map[uint32]*timeline)
	outputOwner := make(map[uint32]uint32)
	var order []*timeline

	for ai, anim := range doc.Animations {
		for si, s := range anim.Samplers {
			if int(s.Input) >= len(doc.Accessors) || int(s.Output) >= len(doc.Accessors) {
				return nil, fmt.Errorf("animation %d sampler %d: %w", ai, si, ErrAccessorOutOfRange)
			}
			tl := byInput[s.Input]
			if tl == nil {
				if _, taken := outputOwner[s.Input]; taken {
					return nil, fmt.Errorf("accessor %d is both a sampler input and output: %w",
						s.Input, ErrAnimationTopology)
				}
				tl = &timeline{input: s.Input}
				byInput[s.Input] = tl
				order = append(order, tl)
			}
			if _, isInput := byInput[s.Output]; isInput {
				return nil, fmt.Errorf("accessor %d is both a sampler input and output: %w",
					s.Output, ErrAnimationTopology)
			}
			if owner, seen := outputOwner[s.Output]; seen {
				if owner != s.Input {
					return nil, fmt.Errorf("output accessor %d driven by inputs %d and %d: %w",
						s.Output, owner, s.Input, ErrAnimationTopology)
				}
				continue
			}
			outputOwner[s.Output] = s.Input
			tl.outputs = append(tl.outputs, s.Output)
		}
	}
	return order, nil
}

func (p *Pipeline) compressTimeline(doc *gltf.Document, w *rewriter, tl *timeline, opts AnimationOptions) (*gltfx.DracoAnimation, error) {
	pc, err := p.ctx.NewPointCloud()
	if err != nil {
		return nil, err
	}
	defer pc.Release()

	in, err := floatAccessor(doc, tl.input)
	if err != nil {
		return nil, fmt.Errorf("input accessor %d: %w", tl.input, err)
	}
	if in.Components != 1 {
		return nil, fmt.Errorf("input accessor %d has %d components: %w",
			tl.input, in.Components, ErrAnimationTopology)
	}
	// Timestamps always land on codec id 0; readers rely on it.
	if _, err := pc.AddAttributeFloat32(codec.ClassGeneric, 1, in.Float32); err != nil {
		return nil, fmt.Errorf("input accessor %d: %w", tl.input, err)
	}

	rec := &gltfx.DracoAnimation{
		Input:        tl.input,
		Outputs:      make([]uint32, 0, len(tl.outputs)),
		AttributesID: make([]uint32, 0, len(tl.outputs)),
	}
	for _, outID := range tl.outputs {
		out, err := floatAccessor(doc, outID)
		if err != nil {
			return nil, fmt.Errorf("output accessor %d: %w", outID, err)
		}
		id, err := pc.AddAttributeFloat32(codec.ClassGeneric, out.Components, out.Float32)
		if err != nil {
			return nil, fmt.Errorf("output accessor %d: %w", outID, err)
		}
		rec.Outputs = append(rec.Outputs, outID)
		rec.AttributesID = append(rec.AttributesID, uint32(id))
	}

	enc := p.ctx.NewEncoder()
	enc.SetEncodingMethod(codec.MethodSequential)
	if opts.QuantizeTimestampsBits > 0 {
		if err := enc.SetQuantizationByID(0, opts.QuantizeTimestampsBits); err != nil {
			return nil, err
		}
	}
	if opts.QuantizeKeyframesBits > 0 {
		for _, id := range rec.AttributesID {
			if err := enc.SetQuantizationByID(int(id), opts.QuantizeKeyframesBits); err != nil {
				return nil, err
			}
		}
	}

	payload, err := enc.EncodePointCloud(pc)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrEncodeFailed
	}

	if opts.DebugDir != "" {
		path := filepath.Join(opts.DebugDir, fmt.Sprintf("timeline_%d.ply", tl.input))
		if err := export.WritePointsPLY(path, pc); err != nil {
			p.log.Warn("timeline debug dump failed", zap.String("path", path), zap.Error(err))
		}
	}

	strip := func(accID uint32) {
		acc := doc.Accessors[accID]
		acc.BufferView = nil
		acc.ByteOffset = 0
	}
	strip(tl.input)
	for _, outID := range tl.outputs {
		strip(outID)
	}
	rec.BufferView = w.addPayload(payload)
	return rec, nil
}

// floatAccessor extracts an accessor that must hold float32 values.
func floatAccessor(doc *gltf.Document, accID uint32) (*gltfx.AccessorData, error) {
	acc := doc.Accessors[accID]
	if acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("component type %d: %w", acc.ComponentType, ErrNotFloatAccessor)
	}
	return gltfx.ReadAccessorData(doc, acc)
}

// DecompressAnimations materializes plain buffer views for every
// accessor named by the asset-level extension array, then drops the
// records and the payload buffers.
func (p *Pipeline) DecompressAnimations(doc *gltf.Document) error {
	records := animationExt(doc)
	if len(records) == 0 {
		return nil
	}

	w := &rewriter{doc: doc}
	for i, rec := range records {
		if err := p.decompressTimeline(doc, w, rec); err != nil {
			return fmt.Errorf("timeline %d: %w", i, err)
		}
	}

	delete(doc.Extensions, gltfx.ExtensionDracoAnimation)
	if len(doc.Extensions) == 0 {
		doc.Extensions = nil
	}
	undeclareExtension(doc, gltfx.ExtensionDracoAnimation)
	w.pruneUnused()

	p.log.Info("animation decompress pass finished", zap.Int("timelines", len(records)))
	return nil
}

func (p *Pipeline) decompressTimeline(doc *gltf.Document, w *rewriter, rec *gltfx.DracoAnimation) error {
	if len(rec.Outputs) != len(rec.AttributesID) {
		return fmt.Errorf("%d outputs but %d attribute ids: %w",
			len(rec.Outputs), len(rec.AttributesID), ErrAnimationTopology)
	}

	payload, err := viewPayload(doc, rec.BufferView)
	if err != nil {
		return err
	}
	dec := p.ctx.NewDecoder()
	pc, err := dec.DecodePointCloud(payload)
	if err != nil {
		return fmt.Errorf("decode timeline: %w", err)
	}
	defer pc.Release()

	restore := func(accID uint32, localID int) error {
		if int(accID) >= len(doc.Accessors) {
			return ErrAccessorOutOfRange
		}
		attr := pc.Attribute(localID)
		if attr == nil {
			return fmt.Errorf("id %d: %w", localID, ErrAttributeNotDecoded)
		}
		if attr.DataType() != codec.TypeFloat32 {
			return fmt.Errorf("decoded as %s: %w", attr.DataType(), ErrNotFloatAccessor)
		}
		op, err := getOp(attr.DataType())
		if err != nil {
			return err
		}
		w.attachDecompressed(accID, op.get(attr).Bytes(), uint32(attr.Count()))
		return nil
	}

	if err := restore(rec.Input, 0); err != nil {
		return fmt.Errorf("input accessor %d: %w", rec.Input, err)
	}
	for i, outID := range rec.Outputs {
		if err := restore(outID, int(rec.AttributesID[i])); err != nil {
			return fmt.Errorf("output accessor %d: %w", outID, err)
		}
	}
	return nil
}
