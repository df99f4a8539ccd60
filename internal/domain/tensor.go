package domain

// Tensor is a normalized pixel tensor in CHW layout, the unit of work handed
// to the embedding network. Channel values are normalized into [-1, 1].
//
// A tensor is transient: it lives for a single extraction call. Callers must
// invoke Release on every exit path (defer) so the backing buffer can be
// reused; peak memory must not grow with the number of items processed.
type Tensor struct {
	Data     []float32
	Channels int
	Height   int
	Width    int

	release func([]float32)
	freed   bool
}

// NewTensor wraps a CHW buffer. release (optional) returns the buffer to its
// pool; it is invoked at most once.
func NewTensor(data []float32, channels, height, width int, release func([]float32)) *Tensor {
	return &Tensor{
		Data:     data,
		Channels: channels,
		Height:   height,
		Width:    width,
		release:  release,
	}
}

// Len returns the expected element count channels*height*width.
func (t *Tensor) Len() int { return t.Channels * t.Height * t.Width }

// Release returns the backing buffer to its pool. Safe to call more than
// once; the tensor must not be used afterwards.
func (t *Tensor) Release() {
	if t.freed {
		return
	}
	t.freed = true
	data := t.Data
	t.Data = nil
	if t.release != nil {
		t.release(data)
	}
}
