package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"comfyserve/internal/comfy"
	"comfyserve/internal/images"
	"comfyserve/internal/request"
	"comfyserve/internal/storage"
	"comfyserve/internal/workflow"
)

// Job states. Every job walks received -> validated -> graph_built ->
// submitted -> polling and ends in exactly one terminal state.
type state string

const (
	stateReceived   state = "received"
	stateValidated  state = "validated"
	stateGraphBuilt state = "graph_built"
	stateSubmitted  state = "submitted"
	statePolling    state = "polling"
	stateSucceeded  state = "succeeded"
	stateFailed     state = "failed"
	stateTimedOut   state = "timed_out"
)

// Job is one unit of work handed to the worker.
type Job struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// Handler orchestrates one job end to end: validate, build the graph, submit,
// wait, encode. It holds no per-job state; concurrent jobs share only the
// read-only template.
type Handler struct {
	comfy    *comfy.Client
	template *workflow.Template
	uploader *storage.Uploader // nil when storage is not configured
	timeout  time.Duration
}

func New(client *comfy.Client, template *workflow.Template, uploader *storage.Uploader, timeout time.Duration) *Handler {
	return &Handler{
		comfy:    client,
		template: template,
		uploader: uploader,
		timeout:  timeout,
	}
}

// Handle processes a single job and always returns an envelope; errors never
// escape as panics or crashes.
func (h *Handler) Handle(ctx context.Context, job Job) (resp Response) {
	log := zap.L().With(zap.String("job_id", job.ID))
	log.Info("job received")

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			resp = Response{
				Error:     fmt.Sprintf("unexpected error: %v", r),
				ErrorType: ErrTypeInternal,
				Traceback: string(debug.Stack()),
			}
		}
	}()

	st := stateReceived

	req, err := request.Parse(job.Input)
	if err != nil {
		log.Warn("validation failed", zap.Error(err))
		return h.fail(log, st, err)
	}
	st = stateValidated
	log.Info("input validated", zap.String("state", string(st)))

	graph, err := h.buildGraph(req)
	if err != nil {
		return h.fail(log, st, err)
	}
	st = stateGraphBuilt
	log.Info("workflow graph ready", zap.String("state", string(st)))

	start := time.Now()
	exec, err := h.comfy.QueuePrompt(ctx, graph)
	if err != nil {
		return h.fail(log, st, err)
	}
	st = stateSubmitted
	log.Info("workflow submitted", zap.String("state", string(st)), zap.String("prompt_id", exec.PromptID))

	st = statePolling
	entry, err := h.comfy.WaitForCompletion(ctx, exec.PromptID, h.timeout)
	if err != nil {
		if _, ok := err.(*comfy.TimeoutError); ok {
			// the engine keeps processing the orphaned job; nothing to cancel
			log.Warn("execution timed out, engine-side job orphaned",
				zap.String("prompt_id", exec.PromptID),
				zap.Duration("timeout", h.timeout))
			return h.fail(log, stateTimedOut, err)
		}
		return h.fail(log, st, err)
	}

	payloads, err := h.collectImages(ctx, job.ID, entry, req.ReturnFormat)
	if err != nil {
		return h.fail(log, st, err)
	}

	generationTime := math.Round(time.Since(start).Seconds()*100) / 100

	meta := Metadata{
		Steps:          req.Steps,
		Cfg:            req.Cfg,
		GenerationTime: generationTime,
	}
	if seed, ok := graph.SamplerSeed(); ok {
		meta.Seed = seed
	} else {
		meta.Seed = req.Seed
	}

	st = stateSucceeded
	log.Info("job completed",
		zap.String("state", string(st)),
		zap.Int("num_images", len(payloads)),
		zap.Float64("generation_time", generationTime))

	return success(&Output{Images: payloads, Metadata: meta})
}

func (h *Handler) fail(log *zap.Logger, st state, err error) Response {
	terminal := stateFailed
	if st == stateTimedOut {
		terminal = stateTimedOut
	}
	log.Error("job failed",
		zap.String("state", string(terminal)),
		zap.String("error_type", errorKind(err)),
		zap.Error(err))
	return failure(err)
}

// buildGraph picks the caller's full workflow when supplied, otherwise builds
// one from the template. A full override wins entirely; convenience fields are
// ignored.
func (h *Handler) buildGraph(req *request.GenerationRequest) (workflow.Graph, error) {
	if req.HasWorkflow() {
		if err := req.Workflow.CheckStructure(); err != nil {
			return nil, &request.ValidationError{Field: "workflow", Message: err.Error()}
		}
		return req.Workflow, nil
	}

	return h.template.Build(workflow.Params{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Steps:          req.Steps,
		Cfg:            req.Cfg,
		Width:          req.Width,
		Height:         req.Height,
	})
}

// collectImages fetches every output artifact, validates it decodes, and
// encodes it per the requested return format.
func (h *Handler) collectImages(ctx context.Context, jobID string, entry *comfy.HistoryEntry, format string) ([]ImagePayload, error) {
	var payloads []ImagePayload
	for _, ref := range entry.Images() {
		data, err := h.comfy.FetchImage(ctx, ref)
		if err != nil {
			return nil, err
		}

		img, err := images.Decode(data)
		if err != nil {
			return nil, err
		}

		payload := ImagePayload{
			Format:   img.Format,
			Width:    img.Width,
			Height:   img.Height,
			Filename: ref.Filename,
		}

		switch format {
		case request.FormatURL:
			if h.uploader != nil {
				url, err := h.uploader.Upload(ctx, jobID, img.Data)
				if err != nil {
					return nil, err
				}
				payload.URL = url
				payload.Format = "webp"
			} else {
				// no storage collaborator configured; hand back the engine URL
				payload.URL = h.comfy.ViewURL(ref)
			}
		default:
			payload.Data = img.Base64()
		}

		payloads = append(payloads, payload)
	}
	return payloads, nil
}
