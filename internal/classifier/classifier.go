// Package classifier runs the full prediction pipeline:
// decode → infer → resolve label → pick exemplar.
package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/catalog"
	"github.com/Brownie44l1/carid/internal/labels"
	"github.com/Brownie44l1/carid/internal/logging"
	"github.com/Brownie44l1/carid/internal/model"
)

// Preprocessor converts encoded image bytes into a model tensor.
type Preprocessor interface {
	Preprocess(data []byte) (*model.Tensor, error)
}

// ExemplarPicker finds a sample image for a category.
type ExemplarPicker interface {
	Pick(id string) (rel string, ok bool, err error)
}

// Result is the outcome of one prediction. Exemplar is empty when
// HasExemplar is false.
type Result struct {
	labels.Prediction
	Exemplar    string
	HasExemplar bool
	Candidates  []labels.Prediction
}

// Options tunes a Service.
type Options struct {
	// TopK is the number of candidates attached to each result. Zero
	// disables the list.
	TopK int
}

// Service is built once at startup and shared by all requests.
type Service struct {
	pre    Preprocessor
	scorer model.Scorer
	cat    *catalog.Catalog
	picker ExemplarPicker
	logger *zap.Logger
	topK   int
}

// New wires the pipeline. picker may be nil, in which case results never
// carry an exemplar. logger is used when the request context carries none;
// nil means no logging.
func New(pre Preprocessor, scorer model.Scorer, cat *catalog.Catalog, picker ExemplarPicker, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pre:    pre,
		scorer: scorer,
		cat:    cat,
		picker: picker,
		logger: logger,
		topK:   opts.TopK,
	}
}

// Catalog returns the categories the service predicts over.
func (s *Service) Catalog() *catalog.Catalog {
	return s.cat
}

// Predict classifies one encoded image. Errors keep their kind:
// *preprocess.DecodeError, model.ErrModelUnavailable, *model.InferenceError
// or *catalog.MismatchError. A missing exemplar is not an error.
func (s *Service) Predict(ctx context.Context, data []byte) (*Result, error) {
	logger := logging.FromContextOr(ctx, s.logger)

	tensor, err := s.pre.Preprocess(data)
	if err != nil {
		return nil, err
	}
	scores, err := s.scorer.Infer(tensor)
	if err != nil {
		return nil, err
	}
	pred, err := labels.Resolve(scores, s.cat)
	if err != nil {
		return nil, err
	}

	res := &Result{Prediction: pred}
	if s.topK > 0 {
		// Lengths were checked by Resolve.
		res.Candidates, _ = labels.TopK(scores, s.cat, s.topK)
	}

	if s.picker != nil {
		rel, ok, err := s.picker.Pick(pred.ID)
		switch {
		case err != nil:
			logger.Warn("exemplar lookup failed", zap.String("category", pred.ID), zap.Error(err))
		case ok:
			res.Exemplar = rel
			res.HasExemplar = true
		default:
			logger.Debug("no exemplar available", zap.String("category", pred.ID))
		}
	}

	logger.Info("prediction",
		zap.String("category", pred.ID),
		zap.Float32("confidence", pred.Confidence),
		zap.String("exemplar", res.Exemplar),
	)
	return res, nil
}
