package request

import (
	"encoding/json"
	"errors"
	"testing"

	"comfyserve/internal/workflow"
)

func TestParseDefaultsApplied(t *testing.T) {
	req, err := Parse(json.RawMessage(`{"prompt": "a beautiful sunset"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if req.Prompt != "a beautiful sunset" {
		t.Errorf("expected prompt to be preserved, got %q", req.Prompt)
	}
	if req.NegativePrompt != DefaultNegativePrompt {
		t.Errorf("expected default negative prompt, got %q", req.NegativePrompt)
	}
	if req.Seed != RandomSeed {
		t.Errorf("expected default seed -1, got %d", req.Seed)
	}
	if req.Steps != DefaultSteps {
		t.Errorf("expected default steps %d, got %d", DefaultSteps, req.Steps)
	}
	if req.Cfg != DefaultCfg {
		t.Errorf("expected default cfg %v, got %v", DefaultCfg, req.Cfg)
	}
	if req.Width != 1024 || req.Height != 1024 {
		t.Errorf("expected default 1024x1024, got %dx%d", req.Width, req.Height)
	}
	if req.ReturnFormat != FormatBase64 {
		t.Errorf("expected default return format base64, got %q", req.ReturnFormat)
	}
}

func TestParseCustomValuesPreserved(t *testing.T) {
	raw := `{
		"prompt": "test",
		"negative_prompt": "ugly, bad",
		"seed": 123,
		"steps": 30,
		"cfg": 5.0,
		"width": 768,
		"height": 1024
	}`
	req, err := Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if req.NegativePrompt != "ugly, bad" {
		t.Errorf("negative prompt not preserved: %q", req.NegativePrompt)
	}
	if req.Seed != 123 || req.Steps != 30 || req.Cfg != 5.0 {
		t.Errorf("sampler params not preserved: seed=%d steps=%d cfg=%v", req.Seed, req.Steps, req.Cfg)
	}
	if req.Width != 768 || req.Height != 1024 {
		t.Errorf("dimensions not preserved: %dx%d", req.Width, req.Height)
	}
}

func TestParseMissingPromptAndWorkflow(t *testing.T) {
	_, err := Parse(json.RawMessage(`{}`))
	assertValidationError(t, err, "prompt")
}

func TestParseBlankPromptRejected(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"prompt": "   "}`))
	assertValidationError(t, err, "prompt")
}

func TestParseWorkflowWithoutPrompt(t *testing.T) {
	raw := `{"workflow": {"1": {"class_type": "KSampler", "inputs": {}}}}`
	req, err := Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("workflow-only input should validate: %v", err)
	}
	if !req.HasWorkflow() {
		t.Error("expected HasWorkflow to be true")
	}
}

func TestParseInvalidSeed(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"prompt": "test", "seed": -2}`))
	assertValidationError(t, err, "seed")
}

func TestParseInvalidSteps(t *testing.T) {
	for _, steps := range []int{0, 101, 150} {
		raw, _ := json.Marshal(map[string]interface{}{"prompt": "test", "steps": steps})
		_, err := Parse(raw)
		assertValidationError(t, err, "steps")
	}
}

func TestParseInvalidCfg(t *testing.T) {
	for _, cfg := range []float64{0.5, 25.0} {
		raw, _ := json.Marshal(map[string]interface{}{"prompt": "test", "cfg": cfg})
		_, err := Parse(raw)
		assertValidationError(t, err, "cfg")
	}
}

func TestParseInvalidDimensions(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"prompt": "test", "width": 513}`))
	assertValidationError(t, err, "width")

	_, err = Parse(json.RawMessage(`{"prompt": "test", "height": 2048}`))
	assertValidationError(t, err, "height")
}

func TestParseAllowedDimensions(t *testing.T) {
	for _, dim := range []int{512, 768, 1024, 1280, 1536} {
		raw, _ := json.Marshal(map[string]interface{}{"prompt": "test", "width": dim, "height": dim})
		if _, err := Parse(raw); err != nil {
			t.Errorf("dimension %d should be allowed: %v", dim, err)
		}
	}
}

func TestParseInvalidReturnFormat(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"prompt": "test", "return_format": "jpeg"}`))
	assertValidationError(t, err, "return_format")
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"prompt": 42}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for wrong type, got %v", err)
	}
}

func TestNormalizeDoesNotMutateWorkflow(t *testing.T) {
	g := workflow.Graph{"1": &workflow.Node{ClassType: "KSampler", Inputs: map[string]interface{}{}}}
	in := &Input{Workflow: g}
	req := in.Normalize()
	if len(req.Workflow) != 1 {
		t.Fatal("workflow not carried through normalization")
	}
}

func assertValidationError(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != field {
		t.Errorf("expected error on field %q, got %q (%s)", field, verr.Field, verr.Message)
	}
}
