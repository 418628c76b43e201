package image

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hvngan/autoanki/internal"
)

const (
	// DefaultRetryLimit caps how many candidate URLs a single resolution
	// will attempt before giving up.
	DefaultRetryLimit = 10

	downloadTimeout = 30 * time.Second
)

// Resolved is a successfully downloaded and validated image.
type Resolved struct {
	Filename    string
	Data        []byte
	ContentType string
}

// Resolver turns a text query into a downloaded image by trying search
// result candidates in order. Resolution fails softly: callers get nil when
// nothing could be fetched, never an error.
type Resolver struct {
	searcher   *Searcher
	httpClient *http.Client
	retryLimit int
	logger     *zap.Logger
}

// NewResolver creates a resolver with the given candidate budget.
func NewResolver(searcher *Searcher, retryLimit int, logger *zap.Logger) *Resolver {
	if retryLimit <= 0 {
		retryLimit = DefaultRetryLimit
	}
	return &Resolver{
		searcher: searcher,
		httpClient: &http.Client{
			Timeout: downloadTimeout,
		},
		retryLimit: retryLimit,
		logger:     logger,
	}
}

// Resolve searches for the query and downloads the first candidate that
// yields a valid image payload. Returns nil if the search fails, finds
// nothing, or every attempted candidate is unusable.
func (r *Resolver) Resolve(ctx context.Context, query string) *Resolved {
	candidates, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.logger.Warn("image search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	if len(candidates) == 0 {
		r.logger.Info("no image candidates found", zap.String("query", query))
		return nil
	}

	if len(candidates) > r.retryLimit {
		candidates = candidates[:r.retryLimit]
	}

	for i, candidate := range candidates {
		resolved, err := r.download(ctx, query, candidate)
		if err != nil {
			r.logger.Debug("image candidate rejected",
				zap.String("query", query),
				zap.Int("attempt", i+1),
				zap.String("url", candidate),
				zap.Error(err))
			continue
		}
		return resolved
	}

	r.logger.Info("image candidates exhausted",
		zap.String("query", query), zap.Int("attempted", len(candidates)))
	return nil
}

func (r *Resolver) download(ctx context.Context, query, imageURL string) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image") {
		return nil, fmt.Errorf("not an image: content-type %q", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}

	return &Resolved{
		Filename:    Filename(query, imageURL, contentType, data),
		Data:        data,
		ContentType: contentType,
	}, nil
}

// Filename derives a deterministic media filename from the query text (or a
// content hash when the query sanitizes away to nothing) plus an extension
// inferred from the content type or the URL path.
func Filename(query, imageURL, contentType string, data []byte) string {
	base := internal.SanitizeFilename(strings.ToLower(query))
	if strings.Trim(base, "_") == "" {
		hash := md5.Sum(data)
		base = hex.EncodeToString(hash[:])[:12]
	}
	return base + extension(imageURL, contentType)
}

func extension(imageURL, contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	}

	if u, err := url.Parse(imageURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".png", ".gif", ".jpg", ".webp":
			return ext
		case ".jpeg":
			return ".jpg"
		}
	}

	return ".jpg"
}
