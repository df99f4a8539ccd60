//go:build !cgo
// +build !cgo

package onnx

import (
	"context"
	"errors"

	"github.com/framefinder/visim/internal/domain"
)

// Embedder stub type when built without CGO (see embedder.go for the real
// implementation).
type Embedder struct{}

// Config holds ONNX backend settings.
type Config struct {
	ModelPath  string
	InputSize  int
	Dimensions int
	InputName  string
	OutputName string
}

// NewEmbedder returns an error when built without CGO (ONNX not available).
func NewEmbedder(Config) (*Embedder, error) {
	return nil, errors.New("onnx backend requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Embed is unreachable in the stub build.
func (e *Embedder) Embed(context.Context, *domain.Tensor) (domain.Vector, error) {
	return nil, errors.New("onnx backend not available in this build")
}

// Dimensions is unreachable in the stub build.
func (e *Embedder) Dimensions() int { return 0 }

// Close is a no-op in the stub build.
func (e *Embedder) Close() error { return nil }
