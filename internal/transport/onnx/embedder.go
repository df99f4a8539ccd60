//go:build cgo
// +build cgo

// Package onnx runs the pretrained image-classification network locally via
// ONNX Runtime (requires CGO and the onnxruntime shared library).
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/framefinder/visim/internal/domain"
)

// Embedder produces embedding vectors from normalized pixel tensors through
// an ONNX session with pre-allocated input/output tensors. The session runs
// one inference at a time; concurrent extraction slots serialize on the
// mutex, and only one item's intermediates are live per slot.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	dimensions   int
	inputSize    int
	mu           sync.Mutex
}

// Config holds ONNX backend settings.
type Config struct {
	ModelPath  string
	InputSize  int // square side length of the network input
	Dimensions int // embedding vector length the model emits
	InputName  string
	OutputName string
}

// NewEmbedder creates an ONNX embedder. InitializeEnvironment is called if
// not already done. The returned embedder must be closed to free the native
// session and tensors.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.InputSize <= 0 || cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("input size and dimensions must be > 0: %w", domain.ErrConfiguration)
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputData := make([]float32, 3*cfg.InputSize*cfg.InputSize)
	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputData := make([]float32, cfg.Dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(cfg.Dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		dimensions:   cfg.Dimensions,
		inputSize:    cfg.InputSize,
	}, nil
}

// Embed runs inference over a normalized CHW tensor. The caller keeps
// ownership of the tensor; the returned vector is an independent copy.
func (e *Embedder) Embed(ctx context.Context, t *domain.Tensor) (domain.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if t.Len() != 3*e.inputSize*e.inputSize {
		return nil, fmt.Errorf("tensor shape %dx%dx%d does not match model input %d: %w",
			t.Channels, t.Height, t.Width, e.inputSize, domain.ErrPreprocess)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), t.Data)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %v: %w", err, domain.ErrInference)
	}

	out := e.outputTensor.GetData()
	vec := make(domain.Vector, e.dimensions)
	copy(vec, out[:e.dimensions])
	return vec, nil
}

// Dimensions returns the embedding vector length.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Close destroys the session and tensors.
func (e *Embedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
