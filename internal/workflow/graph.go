package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Graph is a ComfyUI workflow in API (prompt) format: node id to node definition.
type Graph map[string]*Node

// Node is a single workflow node. Inputs hold either literal values or links,
// a link being a two element array of [source node id, output slot].
type Node struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
	Meta      map[string]interface{} `json:"_meta,omitempty"`
}

// Node class types every executable workflow must contain.
var requiredClassTypes = []string{
	"UNETLoader",
	"CLIPLoader",
	"VAELoader",
	"KSampler",
}

// At least one of these must be present for the engine to produce artifacts.
var outputClassTypes = []string{
	"SaveImage",
	"PreviewImage",
}

// Clone returns a deep copy of the graph via a JSON round trip, so a request
// can mutate its copy without touching the shared template.
func (g Graph) Clone() (Graph, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	var out Graph
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone workflow: %w", err)
	}
	return out, nil
}

// FindByClass returns the first node of the given class type.
func (g Graph) FindByClass(classType string) (string, *Node) {
	for id, n := range g {
		if n != nil && n.ClassType == classType {
			return id, n
		}
	}
	return "", nil
}

// CheckStructure verifies the graph contains the node types a runnable
// text-to-image workflow needs.
func (g Graph) CheckStructure() error {
	if len(g) == 0 {
		return fmt.Errorf("workflow cannot be empty")
	}

	found := make(map[string]bool)
	hasOutput := false
	for _, n := range g {
		if n == nil {
			continue
		}
		found[n.ClassType] = true
		for _, out := range outputClassTypes {
			if n.ClassType == out {
				hasOutput = true
			}
		}
	}

	var missing []string
	for _, ct := range requiredClassTypes {
		if !found[ct] {
			missing = append(missing, ct)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workflow is missing required node types: %s", strings.Join(missing, ", "))
	}
	if !hasOutput {
		return fmt.Errorf("workflow must contain at least one output node type: %s", strings.Join(outputClassTypes, ", "))
	}
	return nil
}

// SamplerSeed reads the concrete seed from the graph's sampler node.
func (g Graph) SamplerSeed() (int64, bool) {
	_, sampler := g.FindByClass("KSampler")
	if sampler == nil {
		return 0, false
	}
	switch v := sampler.Inputs["seed"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// linkTarget extracts the source node id from a link-shaped input value.
func linkTarget(v interface{}) (string, bool) {
	link, ok := v.([]interface{})
	if !ok || len(link) < 2 {
		return "", false
	}
	id, ok := link[0].(string)
	return id, ok
}
