// Package main is the entry point for the batch annotation tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/poolrig/internal/annotate"
	"github.com/Faultbox/poolrig/internal/config"
	"github.com/Faultbox/poolrig/internal/logger"
	"github.com/Faultbox/poolrig/internal/scene"
	"github.com/Faultbox/poolrig/pkg/segment"
)

// bufferExts are tried in order when looking for an object's individual render.
var bufferExts = []string{".pidx", ".png", ".tif", ".tiff"}

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if path := config.SaveConfigPath(); path != "" {
		if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", path)
		return
	}
	if config.SaveUserConfig() {
		if err := cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", filepath.Join(config.ConfigDir(), config.FileName))
		return
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== poolrig annotate ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("annotation failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	start := time.Now()

	if cfg.Input.Scene == "" {
		return fmt.Errorf("no scene file given (-scene)")
	}
	sc, err := scene.Load(cfg.Input.Scene)
	if err != nil {
		return err
	}

	model, err := cfg.LensModel()
	if err != nil {
		return err
	}

	opts := annotate.Options{
		Collections:       cfg.Annotation.Collections,
		CategoryIDs:       cfg.Annotation.CategoryIDs,
		ReferenceObject:   cfg.Annotation.ReferenceObject,
		CameraName:        cfg.Camera.Name,
		Lens:              model,
		Intrinsics:        cfg.Intrinsics(),
		Width:             cfg.Render.Width,
		Height:            cfg.Render.Height,
		Masks:             cfg.Annotation.Masks,
		Outlines:          cfg.Annotation.Outlines,
		IndividualRenders: cfg.Annotation.IndividualRenders,
		VertexCoordinates: cfg.Annotation.VertexCoordinates,
		Workers:           cfg.Annotation.Workers,
	}

	var visible *segment.IndexBuffer
	if opts.Masks || opts.Outlines {
		if cfg.Input.IndexBuffer == "" {
			return fmt.Errorf("masks or outlines requested but no index buffer given (-index-buffer)")
		}
		if visible, err = segment.Load(cfg.Input.IndexBuffer); err != nil {
			return err
		}
		logger.Debug("loaded index buffer",
			zap.String("path", cfg.Input.IndexBuffer),
			zap.Int("width", visible.Width),
			zap.Int("height", visible.Height),
			zap.Int32s("labels", visible.Distinct()))
	}

	var complete map[string]*segment.IndexBuffer
	if opts.IndividualRenders && (opts.Masks || opts.Outlines) {
		complete, err = loadCompleteBuffers(cfg.Input.CompleteBuffers, sc, cfg.Annotation.Collections)
		if err != nil {
			return err
		}
	}

	anns, err := annotate.New(opts, logger.Log).Run(ctx, sc, visible, complete)
	if err != nil {
		return err
	}

	outDir := cfg.OutputDir()
	if err := writeAll(ctx, outDir, anns, cfg); err != nil {
		return err
	}

	manifest := annotate.Manifest{
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		Lens:        model.String(),
		Annotations: anns,
	}
	if err := annotate.WriteManifest(filepath.Join(outDir, "manifest.yaml"), manifest); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	logger.Info("annotation complete",
		zap.Int("objects", len(anns)),
		zap.String("output", outDir),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// writeAll writes the flat records and images of every annotation.
func writeAll(ctx context.Context, dir string, anns []annotate.Annotation, cfg *config.Config) error {
	log := logger.Named("write")
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Annotation.Workers > 0 {
		g.SetLimit(cfg.Annotation.Workers)
	}
	for _, a := range anns {
		a := a
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := annotate.WriteFlat(dir, a); err != nil {
				return fmt.Errorf("writing %s: %w", a.Name, err)
			}
			if err := annotate.WriteMasks(dir, a, cfg.Render.Width, cfg.Render.Height); err != nil {
				return fmt.Errorf("writing masks of %s: %w", a.Name, err)
			}
			log.Debug("wrote annotation", zap.String("object", a.Name), zap.String("dir", dir))
			return nil
		})
	}
	return g.Wait()
}

// loadCompleteBuffers reads the individual render of every annotated object
// from dir, where each is stored as <object name><ext>.
func loadCompleteBuffers(dir string, sc *scene.Scene, collections []string) (map[string]*segment.IndexBuffer, error) {
	if dir == "" {
		return nil, fmt.Errorf("individual renders requested but no directory given (-complete-buffers)")
	}

	buffers := make(map[string]*segment.IndexBuffer)
	for _, name := range collections {
		objs, err := sc.Collection(name)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			path, err := findBuffer(dir, o.Name)
			if err != nil {
				return nil, err
			}
			buf, err := segment.Load(path)
			if err != nil {
				return nil, err
			}
			buffers[o.Name] = buf
		}
	}
	return buffers, nil
}

func findBuffer(dir, name string) (string, error) {
	for _, ext := range bufferExts {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no individual render for %q in %s", name, dir)
}
