// Package imaging turns encoded photos into the normalized pixel tensors the
// embedding network consumes.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	// Register the decoders for the formats the photo library produces.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/framefinder/visim/internal/domain"
)

// DefaultInputSize is the square side length expected by the bundled network.
const DefaultInputSize = 224

// Preprocessor decodes, resizes, and normalizes images into CHW tensors.
// Buffers are pooled: each tensor borrows one and returns it on Release, so
// peak memory stays proportional to the number of concurrent extractions,
// not to the number of items processed over the session.
type Preprocessor struct {
	size int
	pool sync.Pool
}

// NewPreprocessor creates a preprocessor producing size x size tensors.
func NewPreprocessor(size int) (*Preprocessor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("input size must be > 0, got %d: %w", size, domain.ErrConfiguration)
	}
	p := &Preprocessor{size: size}
	p.pool.New = func() any {
		return make([]float32, 3*size*size)
	}
	return p, nil
}

// Decode parses an encoded image. Failures wrap ErrPreprocess so the batch
// runner treats them as per-item, skippable errors.
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, domain.ErrPreprocess)
	}
	return img, nil
}

// ToTensor resizes the image to the network's input size and normalizes each
// channel value v in [0, 255] to (v - 127.5) / 127.5, yielding [-1, 1]. The
// same mapping is applied to indexed and query images; diverging here would
// silently corrupt every distance downstream.
func (p *Preprocessor) ToTensor(img image.Image) *domain.Tensor {
	scaled := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := p.pool.Get().([]float32)
	plane := p.size * p.size
	i := 0
	for y := 0; y < p.size; y++ {
		row := scaled.Pix[y*scaled.Stride:]
		for x := 0; x < p.size; x++ {
			px := row[x*4:]
			data[i] = normalize(px[0])
			data[plane+i] = normalize(px[1])
			data[2*plane+i] = normalize(px[2])
			i++
		}
	}

	return domain.NewTensor(data, 3, p.size, p.size, func(buf []float32) {
		p.pool.Put(buf)
	})
}

// Size returns the square input side length.
func (p *Preprocessor) Size() int { return p.size }

func normalize(v uint8) float32 {
	return (float32(v) - 127.5) / 127.5
}
