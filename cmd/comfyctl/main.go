package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"comfyserve/internal/comfy"
	"comfyserve/internal/logging"
	"comfyserve/internal/request"
	"comfyserve/internal/workflow"
)

// comfyctl submits a single generation straight to a ComfyUI instance and
// writes the resulting images to disk, with live sampling progress.
func main() {
	address := flag.String("address", "http://127.0.0.1:8188", "ComfyUI base URL")
	prompt := flag.String("prompt", "", "Positive prompt")
	negative := flag.String("negative", request.DefaultNegativePrompt, "Negative prompt")
	seed := flag.Int64("seed", request.RandomSeed, "Seed (-1 for random)")
	steps := flag.Int("steps", request.DefaultSteps, "Sampling steps")
	cfg := flag.Float64("cfg", request.DefaultCfg, "CFG scale")
	width := flag.Int("width", request.DefaultWidth, "Image width")
	height := flag.Int("height", request.DefaultHeight, "Image height")
	templatePath := flag.String("workflow", "workflow.json", "Workflow template file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Generation timeout")
	outDir := flag.String("out", ".", "Output directory")
	flag.Parse()

	if _, err := logging.Setup("warn", "console"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := (&request.Input{
		Prompt:         prompt,
		NegativePrompt: negative,
		Seed:           seed,
		Steps:          steps,
		Cfg:            cfg,
		Width:          width,
		Height:         height,
	}).Normalize()
	if err := req.Validate(); err != nil {
		fatal(err)
	}

	template, err := workflow.LoadTemplate(*templatePath)
	if err != nil {
		fatal(err)
	}

	graph, err := template.Build(workflow.Params{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Steps:          req.Steps,
		Cfg:            req.Cfg,
		Width:          req.Width,
		Height:         req.Height,
	})
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := comfy.New(*address)

	// progress stream is best-effort; generation works without it
	events, err := client.Listen(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no progress stream: %v\n", err)
		events = nil
	}
	if events != nil {
		go showProgress(events)
	}

	exec, err := client.QueuePrompt(ctx, graph)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("queued prompt %s\n", exec.PromptID)

	entry, err := client.WaitForCompletion(ctx, exec.PromptID, *timeout)
	if err != nil {
		fatal(err)
	}

	for _, ref := range entry.Images() {
		data, err := client.FetchImage(ctx, ref)
		if err != nil {
			fatal(err)
		}
		path := filepath.Join(*outDir, ref.Filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fatal(err)
		}
		fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
	}
}

func showProgress(events <-chan comfy.ProgressEvent) {
	var bar *progressbar.ProgressBar
	for ev := range events {
		switch ev.Type {
		case "executing":
			fmt.Printf("executing node %s\n", ev.NodeID)
		case "progress":
			if bar == nil {
				bar = progressbar.Default(int64(ev.Max), "sampling")
			}
			bar.Set(ev.Value)
		case "error":
			fmt.Fprintln(os.Stderr, ev.Err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
