package request

import (
	"comfyserve/internal/workflow"
)

// Defaults applied during normalization when the caller omits a field.
const (
	DefaultNegativePrompt = "low quality, blurry, distorted"
	DefaultSteps          = 26
	DefaultCfg            = 4.0
	DefaultWidth          = 1024
	DefaultHeight         = 1024
	DefaultReturnFormat   = FormatBase64

	// RandomSeed asks the builder to pick a seed.
	RandomSeed = -1
)

const (
	FormatBase64 = "base64"
	FormatURL    = "url"
)

// Input is the raw, partially-specified job input. Pointer fields distinguish
// an absent value from an explicit zero.
type Input struct {
	Prompt         *string        `json:"prompt"`
	NegativePrompt *string        `json:"negative_prompt"`
	Seed           *int64         `json:"seed"`
	Steps          *int           `json:"steps"`
	Cfg            *float64       `json:"cfg"`
	Width          *int           `json:"width"`
	Height         *int           `json:"height"`
	ReturnFormat   *string        `json:"return_format"`
	Workflow       workflow.Graph `json:"workflow,omitempty"`
}

// GenerationRequest is a normalized, validated request. Immutable once returned
// from Parse.
type GenerationRequest struct {
	Prompt         string         `json:"prompt" validate:"-"`
	NegativePrompt string         `json:"negative_prompt"`
	Seed           int64          `json:"seed" validate:"gte=-1"`
	Steps          int            `json:"steps" validate:"gte=1,lte=100"`
	Cfg            float64        `json:"cfg" validate:"gte=1,lte=20"`
	Width          int            `json:"width" validate:"oneof=512 768 1024 1280 1536"`
	Height         int            `json:"height" validate:"oneof=512 768 1024 1280 1536"`
	ReturnFormat   string         `json:"return_format" validate:"oneof=base64 url"`
	Workflow       workflow.Graph `json:"workflow,omitempty" validate:"-"`
}

// HasWorkflow reports whether the caller supplied a full workflow override.
// When true, the convenience fields are ignored by the builder.
func (r *GenerationRequest) HasWorkflow() bool {
	return len(r.Workflow) > 0
}

// Normalize fills defaults for every absent field.
func (in *Input) Normalize() *GenerationRequest {
	r := &GenerationRequest{
		NegativePrompt: DefaultNegativePrompt,
		Seed:           RandomSeed,
		Steps:          DefaultSteps,
		Cfg:            DefaultCfg,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		ReturnFormat:   DefaultReturnFormat,
		Workflow:       in.Workflow,
	}
	if in.Prompt != nil {
		r.Prompt = *in.Prompt
	}
	if in.NegativePrompt != nil {
		r.NegativePrompt = *in.NegativePrompt
	}
	if in.Seed != nil {
		r.Seed = *in.Seed
	}
	if in.Steps != nil {
		r.Steps = *in.Steps
	}
	if in.Cfg != nil {
		r.Cfg = *in.Cfg
	}
	if in.Width != nil {
		r.Width = *in.Width
	}
	if in.Height != nil {
		r.Height = *in.Height
	}
	if in.ReturnFormat != nil {
		r.ReturnFormat = *in.ReturnFormat
	}
	return r
}
