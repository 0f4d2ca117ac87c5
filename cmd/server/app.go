package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/catalog"
	"github.com/Brownie44l1/carid/internal/classifier"
	"github.com/Brownie44l1/carid/internal/config"
	"github.com/Brownie44l1/carid/internal/exemplar"
	"github.com/Brownie44l1/carid/internal/model"
	"github.com/Brownie44l1/carid/internal/preprocess"
)

// app is the fully wired inference pipeline.
type app struct {
	engine  *model.Engine
	service *classifier.Service
}

// buildApp loads the catalog and the model and checks they agree before
// anything is served.
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	engine := model.New(model.Options{
		ModelPath:      cfg.Model.Path,
		LibraryPath:    cfg.Model.LibraryPath,
		IntraOpThreads: cfg.Model.IntraOpThreads,
		InterOpThreads: cfg.Model.InterOpThreads,
		Serialize:      cfg.Model.Serialize,
		FallbackSize:   cfg.Model.InputSize,
	})
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if err := cat.Validate(engine.Classes()); err != nil {
		engine.Close()
		return nil, err
	}

	h, w := engine.InputSize()
	pre, err := preprocess.New(preprocess.Options{
		Height:       h,
		Width:        w,
		Filter:       cfg.Preprocess.Filter,
		ChannelOrder: preprocess.ChannelOrder(strings.ToLower(cfg.Preprocess.ChannelOrder)),
		MaxPixels:    cfg.Preprocess.MaxPixels,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	picker := exemplar.New(exemplar.Options{
		StaticDir:  cfg.Samples.StaticDir,
		DatasetDir: cfg.Samples.DatasetDir,
		CacheSize:  cfg.Samples.CacheSize,
		CacheTTL:   cfg.Samples.CacheTTL,
	})

	logger.Info("model loaded",
		zap.String("model", cfg.Model.Path),
		zap.Int("classes", cat.Len()),
		zap.Int("input_height", h),
		zap.Int("input_width", w),
	)
	return &app{
		engine:  engine,
		service: classifier.New(pre, engine, cat, picker, logger, classifier.Options{TopK: cfg.Server.TopK}),
	}, nil
}

func (a *app) Close() {
	a.engine.Close()
}
