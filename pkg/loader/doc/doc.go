package doc

import (
	"context"
	"io"
	"sync"

	"github.com/graftlab/graft/pkg/loader"

	"golang.org/x/sync/singleflight"
)

const docXMLMax = 50 << 20

// DocGraphLoader loads Word documents (.docx) and extracts their text
// content from the document XML. The raw bytes come from an inner loader,
// so the same extraction works for local files, web downloads and S3.
type DocGraphLoader struct {
	loader loader.GraphFileLoader

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewDocGraphLoader creates a document loader that extracts text directly from docx XML.
func NewDocGraphLoader(inner loader.GraphFileLoader) *DocGraphLoader {
	return &DocGraphLoader{
		loader: inner,
		cache:  make(map[string][]byte),
	}
}

// GetFileText extracts text content from a Word document.
func (l *DocGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
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

		text, err := parseDocx(content)
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

// GetFileTextFromIO extracts text content from a Word document provided as an io.Reader.
func GetFileTextFromIO(ctx context.Context, input io.Reader) ([]byte, error) {
	content, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}

	return parseDocx(content)
}
