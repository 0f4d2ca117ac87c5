package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrModelUnavailable is returned by Infer when the engine has not finished
// loading (or has been closed).
var ErrModelUnavailable = errors.New("model: not loaded")

// InferenceError reports a failed model invocation.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "model: inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Scorer turns an image tensor into a score vector.
type Scorer interface {
	Infer(t *Tensor) (ScoreVector, error)
}

// Options configures an Engine.
type Options struct {
	ModelPath string
	// LibraryPath points at the ONNX Runtime shared library. Empty means
	// libonnxruntime.so next to the model file.
	LibraryPath    string
	IntraOpThreads int
	InterOpThreads int
	// Serialize guards session.Run with a mutex. Only needed for runtimes
	// built without concurrent Run support.
	Serialize bool
	// FallbackSize is used for spatial dimensions the model leaves dynamic.
	FallbackSize int
}

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Engine wraps a loaded ONNX classifier. It starts Unloaded; Load moves it to
// Loaded for the rest of the process. The session is read-only once loaded,
// so Infer may be called from many goroutines.
type Engine struct {
	opts   Options
	loadMu sync.Mutex
	state  atomic.Pointer[session]
	runMu  sync.Mutex
}

type session struct {
	sess       *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	io         ioSpec
}

// ioSpec is the validated input/output contract of the model.
type ioSpec struct {
	height  int64
	width   int64
	classes int64
}

func (s ioSpec) inputShape() [4]int64 {
	return [4]int64{1, s.height, s.width, Channels}
}

// New returns an unloaded engine.
func New(opts Options) *Engine {
	if opts.FallbackSize <= 0 {
		opts.FallbackSize = 224
	}
	return &Engine{opts: opts}
}

// Load initializes the runtime and opens the model. Calling Load on an
// already loaded engine does nothing.
func (e *Engine) Load() error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.state.Load() != nil {
		return nil
	}

	libPath := e.opts.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(e.opts.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(e.opts.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to read model info: %w", err)
	}
	spec, err := parseIO(inputs, outputs, int64(e.opts.FallbackSize))
	if err != nil {
		return err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if e.opts.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(e.opts.IntraOpThreads); err != nil {
			return fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if e.opts.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(e.opts.InterOpThreads); err != nil {
			return fmt.Errorf("failed to set inter-op threads: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(e.opts.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	e.state.Store(&session{
		sess:       sess,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		io:         spec,
	})
	return nil
}

// parseIO checks that the model takes one (N, H, W, 3) float tensor and
// produces one (N, C) tensor.
func parseIO(inputs, outputs []ort.InputOutputInfo, fallback int64) (ioSpec, error) {
	if len(inputs) != 1 {
		return ioSpec{}, fmt.Errorf("model: expected 1 input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return ioSpec{}, fmt.Errorf("model: model has no outputs")
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return ioSpec{}, fmt.Errorf("model: input %q is %v, want float", in.Name, in.DataType)
	}
	dims := in.Dimensions
	if len(dims) != 4 || dims[3] != Channels {
		return ioSpec{}, fmt.Errorf("model: input %q has shape %v, want (N, H, W, 3)", in.Name, dims)
	}
	out := outputs[0].Dimensions
	if len(out) != 2 || out[1] <= 0 {
		return ioSpec{}, fmt.Errorf("model: output %q has shape %v, want (N, C)", outputs[0].Name, out)
	}

	spec := ioSpec{height: dims[1], width: dims[2], classes: out[1]}
	if spec.height <= 0 {
		spec.height = fallback
	}
	if spec.width <= 0 {
		spec.width = fallback
	}
	return spec, nil
}

// Loaded reports whether Load has completed.
func (e *Engine) Loaded() bool {
	return e.state.Load() != nil
}

// InputSize returns the model's expected height and width. Before Load it
// returns the fallback size.
func (e *Engine) InputSize() (h, w int) {
	if s := e.state.Load(); s != nil {
		return int(s.io.height), int(s.io.width)
	}
	return e.opts.FallbackSize, e.opts.FallbackSize
}

// Classes returns the length of the score vector, or 0 before Load.
func (e *Engine) Classes() int {
	if s := e.state.Load(); s != nil {
		return int(s.io.classes)
	}
	return 0
}

// Infer runs the model on a single tensor.
func (e *Engine) Infer(t *Tensor) (ScoreVector, error) {
	s := e.state.Load()
	if s == nil {
		return nil, ErrModelUnavailable
	}
	if err := checkTensor(t, s.io.inputShape()); err != nil {
		return nil, &InferenceError{Err: err}
	}

	in, err := ort.NewTensor(ort.NewShape(t.Shape[:]...), t.Data)
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("failed to create input tensor: %w", err)}
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.io.classes))
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("failed to create output tensor: %w", err)}
	}
	defer out.Destroy()

	if err := e.run(s, in, out); err != nil {
		return nil, &InferenceError{Err: err}
	}

	// Copy data out before tensor is destroyed.
	src := out.GetData()
	scores := make(ScoreVector, len(src))
	copy(scores, src)
	return scores, nil
}

func (e *Engine) run(s *session, in, out ort.Value) error {
	if e.opts.Serialize {
		e.runMu.Lock()
		defer e.runMu.Unlock()
	}
	return s.sess.Run([]ort.Value{in}, []ort.Value{out})
}

func checkTensor(t *Tensor, want [4]int64) error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if t.Shape != want {
		return fmt.Errorf("tensor shape %v, want %v", t.Shape, want)
	}
	if n := want[1] * want[2] * want[3]; int64(len(t.Data)) != n {
		return fmt.Errorf("tensor has %d values, want %d", len(t.Data), n)
	}
	return nil
}

// Close releases the session and the ONNX environment. The process is
// expected to exit afterwards.
func (e *Engine) Close() {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	s := e.state.Swap(nil)
	if s == nil {
		return
	}
	s.sess.Destroy()
	ort.DestroyEnvironment()
}
