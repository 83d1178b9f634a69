// Command evaluate runs the obstacle model over image files as if they were
// consecutive frames of one camera and prints the annotations as JSON lines.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"obstaclecam/internal/config"
	"obstaclecam/internal/depth"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/frame"
	"obstaclecam/internal/inference"
	"obstaclecam/internal/service/ai"

	_ "obstaclecam/internal/inference/opencv"
	_ "obstaclecam/internal/inference/tflite"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

const (
	flagBackend   = "backend"
	flagModel     = "model"
	flagConfig    = "model-config"
	flagLabels    = "labels"
	flagLayout    = "layout"
	flagThreshold = "threshold"
	flagFront     = "front"
	flagCPU       = "cpu"
	flagRepeat    = "repeat"
	flagDebug     = "debug"
	flagDepth     = "depth"
)

type frameResult struct {
	File          string                 `json:"file"`
	Pass          int                    `json:"pass"`
	Annotations   []evaluator.Annotation `json:"annotations"`
	DepthObstacle *bool                  `json:"depth_obstacle,omitempty"`
}

func main() {
	cfg := config.Load()

	app := &cli.App{
		Name:      "evaluate",
		Usage:     "run the obstacle model on image files",
		ArgsUsage: "IMAGE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagBackend, Value: cfg.Model.Backend, Usage: fmt.Sprintf("inference backend %v", inference.Runtimes())},
			&cli.StringFlag{Name: flagModel, Aliases: []string{"m"}, Value: cfg.Model.Path, Usage: "model `FILE`"},
			&cli.StringFlag{Name: flagConfig, Value: cfg.Model.ConfigPath, Usage: "network config `FILE` (opencv)"},
			&cli.StringFlag{Name: flagLabels, Value: cfg.Model.LabelsPath, Usage: "labels `FILE`, one per line"},
			&cli.StringFlag{Name: flagLayout, Value: cfg.Model.Layout, Usage: "output layout: ssd, tflite_ssd or yolov8"},
			&cli.Float64Flag{Name: flagThreshold, Value: cfg.Model.Threshold, Usage: "minimum confidence"},
			&cli.BoolFlag{Name: flagFront, Usage: "treat frames as coming from a front camera (mirror X)"},
			&cli.BoolFlag{Name: flagCPU, Usage: "disable accelerated execution"},
			&cli.IntFlag{Name: flagRepeat, Value: 1, Usage: "evaluate the image list this many times"},
			&cli.BoolFlag{Name: flagDebug, Usage: "log at debug level"},
			&cli.StringSliceFlag{Name: flagDepth, Usage: "depth map `FILE` for the image at the same position"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one image is required", 2)
			}

			cfg.Model.Backend = c.String(flagBackend)
			cfg.Model.Path = c.String(flagModel)
			cfg.Model.ConfigPath = c.String(flagConfig)
			cfg.Model.LabelsPath = c.String(flagLabels)
			cfg.Model.Layout = c.String(flagLayout)
			cfg.Model.Threshold = c.Float64(flagThreshold)
			if c.Bool(flagCPU) {
				cfg.Model.Accelerated = false
			}

			level := slog.LevelWarn
			if c.Bool(flagDebug) {
				level = slog.LevelDebug
			}
			log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))

			files := c.Args().Slice()
			depthFiles := c.StringSlice(flagDepth)
			if len(depthFiles) > len(files) {
				return cli.Exit("more depth maps than images", 2)
			}

			return run(c.Context, cfg, log, files, depthFiles, c.Int(flagRepeat), c.Bool(flagFront), c.App.Writer)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, files, depthFiles []string, repeat int, front bool, out io.Writer) error {
	rt, err := inference.New(cfg.Model.Backend)
	if err != nil {
		return err
	}
	evalConfig, err := ai.EvaluatorConfig(cfg)
	if err != nil {
		return err
	}

	camera := evaluator.FacingRear
	if front {
		camera = evaluator.FacingFront
	}
	ev := evaluator.New(rt, evalConfig, evaluator.WithLogger(log), evaluator.WithCamera(camera))
	if err := ev.LoadModel(ctx); err != nil {
		return err
	}
	defer ev.FreeModel()

	frames := make([]*frame.Frame, 0, len(files))
	for i, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		f, err := frame.Decode(data, time.Now())
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if i < len(depthFiles) {
			if err := attachDepth(f, depthFiles[i]); err != nil {
				return err
			}
		}
		frames = append(frames, f)
	}

	depthConfig := depth.Config{Step: cfg.Depth.Step, Jump: cfg.Depth.Jump}
	if err := depthConfig.Validate(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for pass := 1; pass <= max(repeat, 1); pass++ {
		for i, f := range frames {
			anns, err := ev.Evaluate(ctx, f)
			if err != nil {
				return fmt.Errorf("%s: %w", files[i], err)
			}
			result := frameResult{File: files[i], Pass: pass, Annotations: anns}
			if f.Depth != nil {
				_, found, err := depth.DetectObstacle(f, depthConfig)
				if err != nil {
					return fmt.Errorf("%s: %w", files[i], err)
				}
				result.DepthObstacle = &found
			}
			if err := enc.Encode(result); err != nil {
				return err
			}
		}
	}

	return enc.Encode(map[string]any{"stats": ev.Stats()})
}

func attachDepth(f *frame.Frame, name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := f.AttachDepth(img); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
