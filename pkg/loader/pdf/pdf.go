package pdf

import (
	"context"
	"sync"

	"github.com/graftlab/graft/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// PDFGraphLoader loads PDF files and extracts their text content. The raw
// bytes come from an inner loader, so the same extraction works for local
// files, web downloads and S3.
type PDFGraphLoader struct {
	loader loader.GraphFileLoader

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewPDFGraphLoader creates a PDF loader that extracts text directly from PDF content.
func NewPDFGraphLoader(inner loader.GraphFileLoader) *PDFGraphLoader {
	return &PDFGraphLoader{
		loader: inner,
		cache:  make(map[string][]byte),
	}
}

// GetFileText extracts text from a PDF file.
func (l *PDFGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
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

		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}

		text, err := parsePDF(content)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = text
		l.cacheMu.Unlock()

		return text, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
