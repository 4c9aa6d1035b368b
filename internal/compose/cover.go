package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/bbrks/go-blurhash"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/thywilljoshua/manuscript2book/internal/ai"
	"github.com/thywilljoshua/manuscript2book/internal/book"
	apperrors "github.com/thywilljoshua/manuscript2book/internal/errors"
)

// blurHashSize bounds the thumbnail the placeholder hash is computed from.
const blurHashSize = 64

// CoverArtist requests cover images. Every call yields a new cover.
type CoverArtist struct {
	gen         ai.Generator
	aspectRatio string
	logger      *slog.Logger
}

func NewCoverArtist(gen ai.Generator, aspectRatio string, logger *slog.Logger) *CoverArtist {
	if aspectRatio == "" {
		aspectRatio = "3:4"
	}
	return &CoverArtist{gen: gen, aspectRatio: aspectRatio, logger: logger}
}

func (c *CoverArtist) GenerateCover(ctx context.Context, meta book.Metadata) (*book.Cover, error) {
	img, err := c.gen.GenerateImage(ctx, ai.ImageRequest{
		Prompt:      coverPrompt(meta),
		AspectRatio: c.aspectRatio,
	})
	if err != nil {
		return nil, apperrors.CoverGenerationFailed("cover image request failed", err)
	}
	if len(img.Data) == 0 {
		return nil, apperrors.CoverGenerationFailed("cover image is empty", nil)
	}

	cover := &book.Cover{
		ID:       uuid.NewString(),
		MIMEType: img.MIMEType,
		Data:     img.Data,
	}
	if hash, err := computeBlurHash(img.Data); err != nil {
		c.logger.Warn("cover blurhash skipped", "error", err)
	} else {
		cover.BlurHash = hash
	}
	c.logger.Info("cover generated", "cover_id", cover.ID, "bytes", len(img.Data))
	return cover, nil
}

func computeBlurHash(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	hash, err := blurhash.Encode(4, 3, thumbnail(src))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

func thumbnail(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= blurHashSize && h <= blurHashSize {
		return src
	}
	if w > h {
		h = max(1, h*blurHashSize/w)
		w = blurHashSize
	} else {
		w = max(1, w*blurHashSize/h)
		h = blurHashSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
