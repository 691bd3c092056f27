package workflow

import (
	"fmt"
	"math/rand"
)

// Fixed sampler settings for the default template.
const (
	DefaultSampler   = "euler"
	DefaultScheduler = "simple"
)

// Params are the generation parameters injected into a template clone.
type Params struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	Cfg            float64
	Width          int
	Height         int
}

// Build clones the template and rewrites the role nodes with the request's
// parameters, producing a concrete executable graph. A seed of -1 is replaced
// with a random non-negative value.
func (t *Template) Build(p Params) (Graph, error) {
	g, err := t.graph.Clone()
	if err != nil {
		return nil, &TemplateError{Reason: err.Error()}
	}

	node := func(id string) (*Node, error) {
		n, ok := g[id]
		if !ok || n == nil {
			return nil, &TemplateError{Reason: fmt.Sprintf("missing expected node %s", id)}
		}
		return n, nil
	}

	positive, err := node(t.positiveID)
	if err != nil {
		return nil, err
	}
	positive.Inputs["text"] = p.Prompt

	negative, err := node(t.negativeID)
	if err != nil {
		return nil, err
	}
	negative.Inputs["text"] = p.NegativePrompt

	seed := p.Seed
	if seed < 0 {
		seed = rand.Int63()
	}

	sampler, err := node(t.samplerID)
	if err != nil {
		return nil, err
	}
	sampler.Inputs["seed"] = seed
	sampler.Inputs["steps"] = p.Steps
	sampler.Inputs["cfg"] = p.Cfg
	sampler.Inputs["sampler_name"] = DefaultSampler
	sampler.Inputs["scheduler"] = DefaultScheduler

	latent, err := node(t.latentID)
	if err != nil {
		return nil, err
	}
	latent.Inputs["width"] = p.Width
	latent.Inputs["height"] = p.Height

	// SD3-family models need a sampling shift; backfill if the template omits it
	if t.shiftID != "" {
		shift, err := node(t.shiftID)
		if err != nil {
			return nil, err
		}
		if _, ok := shift.Inputs["shift"]; !ok {
			shift.Inputs["shift"] = 3.0
		}
	}

	// distilled-flow guidance tracks cfg when the model uses it
	if t.guidanceID != "" {
		guidance, err := node(t.guidanceID)
		if err != nil {
			return nil, err
		}
		guidance.Inputs["guidance"] = p.Cfg
	}

	return g, nil
}
