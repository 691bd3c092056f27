package workflow

import (
	"encoding/json"
	"reflect"
	"testing"
)

func loadTestTemplate(t *testing.T) *Template {
	t.Helper()
	tpl, err := LoadTemplate("testdata/workflow.json")
	if err != nil {
		t.Fatalf("failed to load test template: %v", err)
	}
	return tpl
}

func testParams() Params {
	return Params{
		Prompt:         "a red cube",
		NegativePrompt: "low quality",
		Seed:           42,
		Steps:          26,
		Cfg:            4.0,
		Width:          1024,
		Height:         1024,
	}
}

func TestBuildInjectsParameters(t *testing.T) {
	tpl := loadTestTemplate(t)

	g, err := tpl.Build(testParams())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if g["6"].Inputs["text"] != "a red cube" {
		t.Errorf("positive prompt not injected: %v", g["6"].Inputs["text"])
	}
	if g["7"].Inputs["text"] != "low quality" {
		t.Errorf("negative prompt not injected: %v", g["7"].Inputs["text"])
	}

	sampler := g["11"].Inputs
	if sampler["seed"] != int64(42) {
		t.Errorf("seed not injected: %v", sampler["seed"])
	}
	if sampler["steps"] != 26 || sampler["cfg"] != 4.0 {
		t.Errorf("sampler params not injected: steps=%v cfg=%v", sampler["steps"], sampler["cfg"])
	}
	if sampler["sampler_name"] != DefaultSampler || sampler["scheduler"] != DefaultScheduler {
		t.Errorf("fixed sampler settings not applied: %v / %v", sampler["sampler_name"], sampler["scheduler"])
	}

	latent := g["10"].Inputs
	if latent["width"] != 1024 || latent["height"] != 1024 {
		t.Errorf("dimensions not injected: %vx%v", latent["width"], latent["height"])
	}
}

func TestBuildRandomizesNegativeSeed(t *testing.T) {
	tpl := loadTestTemplate(t)

	p := testParams()
	p.Seed = -1

	g1, err := tpl.Build(p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	seed1, ok := g1.SamplerSeed()
	if !ok {
		t.Fatal("no seed in built graph")
	}
	if seed1 < 0 {
		t.Errorf("randomized seed must be non-negative, got %d", seed1)
	}

	g2, _ := tpl.Build(p)
	seed2, _ := g2.SamplerSeed()
	if seed1 == seed2 {
		t.Errorf("two random seeds were identical: %d", seed1)
	}
}

func TestBuildDeterministicWithFixedSeed(t *testing.T) {
	tpl := loadTestTemplate(t)

	g1, err := tpl.Build(testParams())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	g2, err := tpl.Build(testParams())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	b1, _ := json.Marshal(g1)
	b2, _ := json.Marshal(g2)
	if string(b1) != string(b2) {
		t.Error("identical params produced different graphs")
	}
}

func TestBuildDoesNotMutateTemplate(t *testing.T) {
	tpl := loadTestTemplate(t)

	before, _ := json.Marshal(tpl.Graph())
	if _, err := tpl.Build(testParams()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	after, _ := json.Marshal(tpl.Graph())

	if string(before) != string(after) {
		t.Error("Build mutated the shared template graph")
	}
}

func TestParseTemplateMissingSampler(t *testing.T) {
	raw := `{
		"1": {"class_type": "UNETLoader", "inputs": {}},
		"2": {"class_type": "CLIPLoader", "inputs": {}},
		"3": {"class_type": "VAELoader", "inputs": {}},
		"4": {"class_type": "SaveImage", "inputs": {}}
	}`
	_, err := ParseTemplate([]byte(raw))
	if _, ok := err.(*TemplateError); !ok {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestParseTemplateDanglingLink(t *testing.T) {
	raw := `{
		"1": {"class_type": "UNETLoader", "inputs": {}},
		"2": {"class_type": "CLIPLoader", "inputs": {}},
		"3": {"class_type": "VAELoader", "inputs": {}},
		"4": {"class_type": "SaveImage", "inputs": {}},
		"5": {"class_type": "KSampler", "inputs": {
			"positive": ["99", 0],
			"negative": ["7", 0],
			"latent_image": ["8", 0]
		}}
	}`
	_, err := ParseTemplate([]byte(raw))
	terr, ok := err.(*TemplateError)
	if !ok {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if terr.Reason == "" {
		t.Error("TemplateError should carry a reason")
	}
}

func TestCheckStructureMissingNodes(t *testing.T) {
	g := Graph{
		"1": &Node{ClassType: "KSampler", Inputs: map[string]interface{}{}},
	}
	err := g.CheckStructure()
	if err == nil {
		t.Fatal("expected structure check to fail")
	}
}

func TestCheckStructureEmpty(t *testing.T) {
	if err := (Graph{}).CheckStructure(); err == nil {
		t.Fatal("expected empty workflow to be rejected")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := Graph{
		"1": &Node{ClassType: "CLIPTextEncode", Inputs: map[string]interface{}{"text": "original"}},
	}
	clone, err := g.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	clone["1"].Inputs["text"] = "changed"
	if g["1"].Inputs["text"] != "original" {
		t.Error("Clone shares state with the original graph")
	}
	if !reflect.DeepEqual(g["1"].ClassType, clone["1"].ClassType) {
		t.Error("Clone lost node data")
	}
}
