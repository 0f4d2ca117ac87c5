package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/catalog"
	"github.com/Brownie44l1/carid/internal/classifier"
	"github.com/Brownie44l1/carid/internal/labels"
	"github.com/Brownie44l1/carid/internal/logging"
	"github.com/Brownie44l1/carid/internal/model"
	"github.com/Brownie44l1/carid/internal/preprocess"
)

// StaticPrefix is the URL prefix the sample pool is served under.
const StaticPrefix = "/static"

// Predictor runs the classification pipeline.
type Predictor interface {
	Predict(ctx context.Context, data []byte) (*classifier.Result, error)
}

// ModelStatus reports whether inference is ready.
type ModelStatus interface {
	Loaded() bool
}

// Handler serves the prediction API.
type Handler struct {
	predictor Predictor
	status    ModelStatus
	cat       *catalog.Catalog
	maxUpload int64
}

// NewHandler creates a Handler. maxUpload caps the request body in bytes.
func NewHandler(predictor Predictor, status ModelStatus, cat *catalog.Catalog, maxUpload int64) *Handler {
	return &Handler{
		predictor: predictor,
		status:    status,
		cat:       cat,
		maxUpload: maxUpload,
	}
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	Label       string              `json:"label"`
	Category    string              `json:"category"`
	Confidence  float32             `json:"confidence"`
	Exemplar    *string             `json:"exemplar"`
	ExemplarURL *string             `json:"exemplar_url"`
	Candidates  []labels.Prediction `json:"candidates,omitempty"`
}

// CategoryResponse describes one catalog entry.
type CategoryResponse struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterRoutes mounts the API and the static sample pool on r.
func RegisterRoutes(r gin.IRouter, h *Handler, staticDir string) {
	r.GET("/health", h.Health)
	r.GET("/categories", h.Categories)
	r.POST("/predict", h.Predict)
	if staticDir != "" {
		r.Static(StaticPrefix, staticDir)
	}
}

func (h *Handler) Health(c *gin.Context) {
	loaded := h.status != nil && h.status.Loaded()
	body := gin.H{
		"status":       "healthy",
		"model_loaded": loaded,
		"categories":   h.cat.Len(),
	}
	if !loaded {
		body["status"] = "loading"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) Categories(c *gin.Context) {
	all := h.cat.All()
	out := make([]CategoryResponse, len(all))
	for i, cat := range all {
		out[i] = CategoryResponse{Index: cat.Index, ID: cat.ID, Label: labels.Display(cat.ID)}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Predict(c *gin.Context) {
	logger := logging.FromContext(c.Request.Context())

	if c.Request.ContentLength > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "image too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	data, status, msg := h.readUpload(c)
	if status != 0 {
		c.JSON(status, errorResponse{Error: msg})
		return
	}

	result, err := h.predictor.Predict(c.Request.Context(), data)
	if err != nil {
		status, msg := classifyError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("prediction failed", zap.Error(err))
		} else {
			logger.Info("rejected upload", zap.Error(err))
		}
		c.JSON(status, errorResponse{Error: msg})
		return
	}

	resp := PredictResponse{
		Label:      result.Label,
		Category:   result.ID,
		Confidence: result.Confidence,
		Candidates: result.Candidates,
	}
	if result.HasExemplar {
		rel := result.Exemplar
		url := path.Join(StaticPrefix, rel)
		resp.Exemplar = &rel
		resp.ExemplarURL = &url
	}
	c.JSON(http.StatusOK, resp)
}

// readUpload returns the uploaded image bytes, or an HTTP status and message
// when the request is unusable. The form field is "file"; "image" is also
// accepted.
func (h *Handler) readUpload(c *gin.Context) ([]byte, int, string) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		fh, err = c.FormFile("image")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, http.StatusRequestEntityTooLarge, "image too large"
		case errors.Is(err, http.ErrMissingFile):
			return nil, http.StatusBadRequest, "no file uploaded; use the 'file' form field"
		default:
			return nil, http.StatusBadRequest, "failed to parse upload"
		}
	}
	if fh.Size == 0 {
		return nil, http.StatusBadRequest, "no file selected"
	}

	data, err := readFile(fh)
	if err != nil {
		return nil, http.StatusBadRequest, "failed to read upload"
	}
	return data, 0, ""
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// classifyError maps pipeline errors to a status and a message that is safe
// to show to users.
func classifyError(err error) (int, string) {
	var decodeErr *preprocess.DecodeError
	var inferErr *model.InferenceError
	var mismatch *catalog.MismatchError
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, "invalid image format"
	case errors.Is(err, model.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model is not ready, try again later"
	case errors.As(err, &inferErr), errors.As(err, &mismatch):
		return http.StatusInternalServerError, "prediction failed"
	default:
		return http.StatusInternalServerError, "an internal error occurred"
	}
}
