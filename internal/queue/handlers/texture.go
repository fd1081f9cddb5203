package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mahirjain10/texture-workers/internal/transformation"
	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

type TextureHandler struct {
	logger *zap.Logger
}

func NewTextureHandler(logger *zap.Logger) *TextureHandler {
	return &TextureHandler{logger: logger}
}

// GenerateMaps decodes the photo at rawPath and writes one PNG per map into
// outDir. The returned paths follow the order of transformation.MapsFor.
func (h *TextureHandler) GenerateMaps(ctx context.Context, job types.TextureJob, rawPath string, outDir string) ([]string, error) {
	kinds, err := transformation.MapsFor(job.TextureMode)
	if err != nil {
		return nil, err
	}

	imageBuffer, err := utils.ReadImageBuffer(rawPath)
	if err != nil {
		return nil, err
	}
	src, err := transformation.Decode(imageBuffer)
	if err != nil {
		return nil, err
	}
	base, err := transformation.Base(src, job.TextureSize)
	if err != nil {
		return nil, err
	}

	files := make([]string, len(kinds))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := transformation.Generate(kind, base)
			if err != nil {
				return err
			}
			encoded, err := transformation.Encode(img)
			if err != nil {
				return err
			}
			path, err := utils.PathUtil(outDir, string(kind)+".png")
			if err != nil {
				return err
			}
			if err := utils.WriteImageBuffer(path, encoded); err != nil {
				return err
			}
			files[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generate maps for task %s: %w", job.TaskID, err)
	}

	h.logger.Info("texture maps generated",
		zap.String("taskId", job.TaskID),
		zap.String("mode", job.TextureMode),
		zap.Int("size", job.TextureSize),
		zap.Int("maps", len(files)),
		zap.String("dir", filepath.Clean(outDir)),
	)
	return files, nil
}
