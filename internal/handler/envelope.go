package handler

import (
	"errors"

	"comfyserve/internal/comfy"
	"comfyserve/internal/images"
	"comfyserve/internal/request"
	"comfyserve/internal/workflow"
)

// Error kinds surfaced in the failure envelope.
const (
	ErrTypeValidation = "ValidationError"
	ErrTypeTemplate   = "TemplateError"
	ErrTypeExecution  = "ExecutionError"
	ErrTypeTimeout    = "ExecutionTimeout"
	ErrTypeDecode     = "DecodeError"
	ErrTypeConnection = "ConnectionError"
	ErrTypeInternal   = "InternalError"
)

// ImagePayload is one generated image in the success envelope. Data carries
// base64 bytes; URL is set instead for the url return format.
type ImagePayload struct {
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Filename string `json:"filename,omitempty"`
}

// Metadata describes the parameters that produced the images.
type Metadata struct {
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	Cfg            float64 `json:"cfg"`
	GenerationTime float64 `json:"generation_time"`
}

type Output struct {
	Images   []ImagePayload `json:"images"`
	Metadata Metadata       `json:"metadata"`
}

// Response is the uniform envelope returned for every job, success or failure.
type Response struct {
	Output    *Output `json:"output,omitempty"`
	Status    string  `json:"status,omitempty"`
	Error     string  `json:"error,omitempty"`
	ErrorType string  `json:"error_type,omitempty"`
	Traceback string  `json:"traceback,omitempty"`
}

func success(out *Output) Response {
	return Response{Output: out, Status: "success"}
}

// failure converts any error from the pipeline into the failure envelope.
func failure(err error) Response {
	return Response{Error: err.Error(), ErrorType: errorKind(err)}
}

func errorKind(err error) string {
	var (
		validationErr *request.ValidationError
		templateErr   *workflow.TemplateError
		timeoutErr    *comfy.TimeoutError
		executionErr  *comfy.ExecutionError
		connectionErr *comfy.ConnectionError
		decodeErr     *images.DecodeError
	)
	switch {
	case errors.As(err, &validationErr):
		return ErrTypeValidation
	case errors.As(err, &templateErr):
		return ErrTypeTemplate
	case errors.As(err, &timeoutErr):
		return ErrTypeTimeout
	case errors.As(err, &executionErr):
		return ErrTypeExecution
	case errors.As(err, &connectionErr):
		return ErrTypeConnection
	case errors.As(err, &decodeErr):
		return ErrTypeDecode
	default:
		return ErrTypeInternal
	}
}
