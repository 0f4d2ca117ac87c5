package model

// Metadata mirrors the optional JSON file exported next to a model artifact.
// Only Classes is required when it is used as a category catalog.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Channels is the number of color channels the classifier consumes.
const Channels = 3

// Tensor is a single-image NHWC batch: Shape is always (1, H, W, 3) and Data
// holds H*W*3 values in [0,1]. A Tensor belongs to one inference call and is
// not modified after it is built.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// NewTensor allocates a zeroed (1, h, w, 3) tensor.
func NewTensor(h, w int) *Tensor {
	return &Tensor{
		Shape: [4]int64{1, int64(h), int64(w), Channels},
		Data:  make([]float32, h*w*Channels),
	}
}

// Height returns the spatial height of the tensor.
func (t *Tensor) Height() int { return int(t.Shape[1]) }

// Width returns the spatial width of the tensor.
func (t *Tensor) Width() int { return int(t.Shape[2]) }

// At returns the value of channel c at pixel (x, y).
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width()+x)*Channels+c]
}

// ScoreVector holds one score per category, in catalog order.
type ScoreVector []float32
