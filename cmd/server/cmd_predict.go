package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/classifier"
	"github.com/Brownie44l1/carid/internal/logging"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "predict FILE...",
		Short: "Classify local images and print the label and a sample path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := logging.WithContext(cmd.Context(), opts.logger)
			return predictFiles(ctx, a.service, args, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per file")
	return cmd
}

type fileResult struct {
	File       string  `json:"file"`
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Confidence float32 `json:"confidence"`
	Exemplar   *string `json:"exemplar"`
}

type predictor interface {
	Predict(ctx context.Context, data []byte) (*classifier.Result, error)
}

// predictFiles classifies every file and keeps going past failures. The
// returned error reports how many files failed.
func predictFiles(ctx context.Context, p predictor, files []string, out io.Writer, asJSON bool) error {
	logger := logging.FromContext(ctx)
	enc := json.NewEncoder(out)
	failed := 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err == nil {
			var res *classifier.Result
			res, err = p.Predict(ctx, data)
			if err == nil {
				if werr := printResult(out, enc, file, res, asJSON); werr != nil {
					return werr
				}
				continue
			}
		}
		failed++
		logger.Error("predict failed", zap.String("file", file), zap.Error(err))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func printResult(out io.Writer, enc *json.Encoder, file string, res *classifier.Result, asJSON bool) error {
	if asJSON {
		fr := fileResult{
			File:       file,
			Label:      res.Label,
			Category:   res.ID,
			Confidence: res.Confidence,
		}
		if res.HasExemplar {
			ex := res.Exemplar
			fr.Exemplar = &ex
		}
		return enc.Encode(fr)
	}
	exemplar := "-"
	if res.HasExemplar {
		exemplar = res.Exemplar
	}
	_, err := fmt.Fprintf(out, "%s\t%s\t%.4f\t%s\n", file, res.Label, res.Confidence, exemplar)
	return err
}
