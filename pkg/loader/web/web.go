package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/graftlab/graft/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// WebGraphLoader loads content from web URLs and extracts readable text.
// For HTML pages, it uses readability to extract the main content.
type WebGraphLoader struct {
	fallback loader.GraphFileLoader

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebGraphLoader creates a new web loader without a fallback loader.
func NewWebGraphLoader() *WebGraphLoader {
	return &WebGraphLoader{
		cache: make(map[string][]byte),
	}
}

// NewWebGraphLoaderWithLoader creates a web loader with a fallback for non-HTML content.
func NewWebGraphLoaderWithLoader(fallback loader.GraphFileLoader) *WebGraphLoader {
	return &WebGraphLoader{
		fallback: fallback,
		cache:    make(map[string][]byte),
	}
}

// GetFileText fetches a URL and extracts readable text content.
// For HTML pages, it uses readability to extract the main article content.
func (l *WebGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	key := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.FilePath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		var content []byte

		contentType := resp.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, "text/html"):
			pageURL, err := url.Parse(file.FilePath)
			if err != nil {
				return nil, fmt.Errorf("failed to parse url: %w", err)
			}
			article, err := readability.FromReader(resp.Body, pageURL)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			content = []byte(builder.String())

		case l.fallback != nil:
			content, err = l.fallback.GetFileText(ctx, file)
			if err != nil {
				return nil, err
			}

		default:
			content, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
		}

		l.cacheMu.Lock()
		l.cache[key] = content
		l.cacheMu.Unlock()

		return content, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
