// dracotool is a CLI utility for compressing and decompressing glTF
// mesh and animation data.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/dracopack/internal/config"
	"github.com/Faultbox/dracopack/internal/logger"
	"github.com/Faultbox/dracopack/pkg/codec"
	"github.com/Faultbox/dracopack/pkg/gltfx"
	"github.com/Faultbox/dracopack/pkg/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "compress", "c":
		cmdCompress(args)
	case "decompress", "d":
		cmdDecompress(args)
	case "info":
		cmdInfo(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`dracotool - glTF mesh compression utility

Usage:
  dracotool <command> [options]

Commands:
  compress <in> <out>    Compress mesh primitives (and optionally animations)
  decompress <in> <out>  Restore plain geometry from a compressed asset
  info <in>              Show asset and compression statistics

Examples:
  dracotool compress scene.gltf scene.packed.gltf
  dracotool compress -level 10 -qp 11 -animations model.glb model.packed.glb
  dracotool decompress scene.packed.gltf scene.gltf
  dracotool info scene.packed.gltf`)
}

func cmdCompress(args []string) {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	level := fs.Int("level", 0, "Compression level 0..10")
	qp := fs.Int("qp", 0, "Position quantization bits (0 = lossless)")
	qn := fs.Int("qn", 0, "Normal quantization bits")
	qt := fs.Int("qt", 0, "Texcoord quantization bits")
	qc := fs.Int("qc", 0, "Color quantization bits")
	qg := fs.Int("qg", 0, "Generic quantization bits")
	unified := fs.Bool("unified", false, "Quantize positions against one shared bounding cube")
	animations := fs.Bool("animations", false, "Also compress animation timelines")
	qts := fs.Int("qts", 0, "Timestamp quantization bits")
	qkf := fs.Int("qkf", 0, "Keyframe quantization bits")
	debugDir := fs.String("debug-dir", "", "Directory for OBJ/PLY debug dumps")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: dracotool compress [options] <input> <output>")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line beat the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "level":
			cfg.Compression.Level = *level
		case "qp":
			cfg.Compression.PositionBits = *qp
		case "qn":
			cfg.Compression.NormalBits = *qn
		case "qt":
			cfg.Compression.TexcoordBits = *qt
		case "qc":
			cfg.Compression.ColorBits = *qc
		case "qg":
			cfg.Compression.GenericBits = *qg
		case "unified":
			cfg.Compression.UnifiedQuantization = *unified
		case "qts":
			cfg.Animation.TimestampBits = *qts
		case "qkf":
			cfg.Animation.KeyframeBits = *qkf
		case "debug-dir":
			cfg.Compression.DebugDir = *debugDir
			cfg.Animation.DebugDir = *debugDir
		}
	})

	log := logger.New(cfg.Logging.Level, cfg.Logging.LogFile)
	defer log.Sync()

	doc, err := gltf.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}

	ctx := codec.NewContext()
	defer ctx.Close()
	p := pipeline.New(ctx, log)

	if err := p.Compress(doc, cfg.Compression.Options()); err != nil {
		fmt.Fprintf(os.Stderr, "Error compressing meshes: %v\n", err)
		os.Exit(1)
	}
	if *animations {
		if err := p.CompressAnimations(doc, cfg.Animation.Options()); err != nil {
			fmt.Fprintf(os.Stderr, "Error compressing animations: %v\n", err)
			os.Exit(1)
		}
	}

	if err := saveDocument(doc, fs.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", fs.Arg(1), err)
		os.Exit(1)
	}

	fmt.Printf("Compressed: %s -> %s\n", fs.Arg(0), fs.Arg(1))
}

func cmdDecompress(args []string) {
	fs := flag.NewFlagSet("decompress", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: dracotool decompress [options] <input> <output>")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.LogFile)
	defer log.Sync()

	doc, err := gltf.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}

	ctx := codec.NewContext()
	defer ctx.Close()
	p := pipeline.New(ctx, log)

	if err := p.DecompressAnimations(doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error decompressing animations: %v\n", err)
		os.Exit(1)
	}
	if err := p.Decompress(doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error decompressing meshes: %v\n", err)
		os.Exit(1)
	}

	if err := saveDocument(doc, fs.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", fs.Arg(1), err)
		os.Exit(1)
	}

	fmt.Printf("Decompressed: %s -> %s\n", fs.Arg(0), fs.Arg(1))
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dracotool info <input>")
		os.Exit(1)
	}

	doc, err := gltf.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", args[0], err)
		os.Exit(1)
	}

	primitives := 0
	compressed := 0
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			primitives++
			if prim.Extensions != nil {
				if _, ok := prim.Extensions[gltfx.ExtensionDracoMesh]; ok {
					compressed++
				}
			}
		}
	}

	timelines := 0
	if doc.Extensions != nil {
		if recs, ok := doc.Extensions[gltfx.ExtensionDracoAnimation].([]*gltfx.DracoAnimation); ok {
			timelines = len(recs)
		}
	}

	var bufferBytes uint64
	for _, buf := range doc.Buffers {
		bufferBytes += uint64(buf.ByteLength)
	}

	fmt.Printf("Asset:                 %s\n", args[0])
	fmt.Printf("Meshes:                %d\n", len(doc.Meshes))
	fmt.Printf("Primitives:            %d (%d compressed)\n", primitives, compressed)
	fmt.Printf("Animations:            %d (%d compressed timelines)\n", len(doc.Animations), timelines)
	fmt.Printf("Accessors:             %d\n", len(doc.Accessors))
	fmt.Printf("Buffer views:          %d\n", len(doc.BufferViews))
	fmt.Printf("Buffers:               %d (%.2f MB)\n", len(doc.Buffers), float64(bufferBytes)/(1024*1024))
	if len(doc.ExtensionsUsed) > 0 {
		fmt.Printf("Extensions used:       %s\n", strings.Join(doc.ExtensionsUsed, ", "))
	}
	if len(doc.ExtensionsRequired) > 0 {
		fmt.Printf("Extensions required:   %s\n", strings.Join(doc.ExtensionsRequired, ", "))
	}
}

// saveDocument writes the document as .glb or .gltf depending on the
// output extension. Buffers the passes appended hold their bytes only
// in memory, so everything but a GLB's first buffer gets embedded as
// a data URI before saving.
func saveDocument(doc *gltf.Document, path string) error {
	binary := strings.EqualFold(filepath.Ext(path), ".glb")
	for i, buf := range doc.Buffers {
		if binary && i == 0 {
			continue
		}
		if len(buf.Data) > 0 && buf.URI == "" {
			buf.EmbeddedResource()
		}
	}
	if binary {
		return gltf.SaveBinary(doc, path)
	}
	return gltf.Save(doc, path)
}
