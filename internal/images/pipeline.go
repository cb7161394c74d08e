package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	maxWidth    = 800
	maxHeight   = 600
	jpegQuality = 80
	// maxImageBytes caps a single image download, mirroring the page
	// fetch limit in the extractor.
	maxImageBytes = 10 << 20
)

// CacheKey derives the local filename from the remote URL, not the image
// bytes: the same remote URL always maps to the same file, so re-running
// an extraction reuses the cached copy. Two URLs serving identical bytes
// are stored twice.
func CacheKey(remoteURL string) string {
	sum := md5.Sum([]byte(remoteURL))
	return hex.EncodeToString(sum[:]) + ".jpg"
}

// Pipeline downloads remote images, shrinks them to a web-friendly size
// and writes them into the local asset directory.
type Pipeline struct {
	client   *http.Client
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

func NewPipeline(dir string, logger *zap.Logger) (*Pipeline, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Pipeline{
		client:   &http.Client{Timeout: 20 * time.Second},
		dir:      dir,
		maxBytes: maxImageBytes,
		logger:   logger,
	}, nil
}

// Dir returns the asset directory the pipeline writes into.
func (p *Pipeline) Dir() string {
	return p.dir
}

// DownloadAndOptimize fetches the image, fits it within 800x600 without
// upscaling, re-encodes it as JPEG at quality 80 and returns the local
// filename. Callers treat any error as skip-this-image, never as an
// extraction failure.
func (p *Pipeline) DownloadAndOptimize(ctx context.Context, remoteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return "", fmt.Errorf("image too large: exceeds %d bytes", p.maxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	// Fit only shrinks; smaller images pass through untouched.
	fitted := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	name := CacheKey(remoteURL)
	path := filepath.Join(p.dir, name)
	if err := imaging.Save(fitted, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	p.logger.Debug("image cached",
		zap.String("url", remoteURL),
		zap.String("file", name))
	return name, nil
}
