package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// TemplateError indicates a misconfigured default workflow. It is fatal at
// startup rather than a per-request failure.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string {
	return "workflow template: " + e.Reason
}

// Template is the default workflow loaded once at startup and treated as
// read-only. Role node ids are resolved up front by following the sampler's
// input links, so the builder never has to guess which text node is the
// negative prompt.
type Template struct {
	graph Graph

	samplerID  string
	positiveID string
	negativeID string
	latentID   string

	// optional model-specific nodes
	shiftID    string
	guidanceID string
}

// LoadTemplate reads and resolves the default workflow from a JSON file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return ParseTemplate(data)
}

// ParseTemplate resolves a template from raw JSON.
func ParseTemplate(data []byte) (*Template, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &TemplateError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := g.CheckStructure(); err != nil {
		return nil, &TemplateError{Reason: err.Error()}
	}

	t := &Template{graph: g}
	if err := t.resolveRoles(); err != nil {
		return nil, err
	}
	return t, nil
}

// Graph returns the template's read-only graph. Callers must Clone before
// mutating.
func (t *Template) Graph() Graph {
	return t.graph
}

func (t *Template) resolveRoles() error {
	samplerID, sampler := t.graph.FindByClass("KSampler")
	if sampler == nil {
		return &TemplateError{Reason: "no KSampler node"}
	}
	t.samplerID = samplerID

	roles := map[string]*string{
		"positive":     &t.positiveID,
		"negative":     &t.negativeID,
		"latent_image": &t.latentID,
	}
	for input, dst := range roles {
		id, ok := linkTarget(sampler.Inputs[input])
		if !ok {
			return &TemplateError{Reason: fmt.Sprintf("KSampler %s has no linked %s input", samplerID, input)}
		}
		if _, exists := t.graph[id]; !exists {
			return &TemplateError{Reason: fmt.Sprintf("KSampler %s input links to missing node %s", input, id)}
		}
		*dst = id
	}

	// prompt nodes must accept text
	for _, id := range []string{t.positiveID, t.negativeID} {
		if t.graph[id].ClassType != "CLIPTextEncode" {
			return &TemplateError{Reason: fmt.Sprintf("node %s is %s, expected CLIPTextEncode", id, t.graph[id].ClassType)}
		}
	}

	if id, n := t.graph.FindByClass("ModelSamplingSD3"); n != nil {
		t.shiftID = id
	}
	if id, n := t.graph.FindByClass("FluxGuidance"); n != nil {
		t.guidanceID = id
	}
	return nil
}
