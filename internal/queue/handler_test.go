package queue

import (
	"context"
	"testing"

	"github.com/graftlab/graft/pkg/loader"
	docloader "github.com/graftlab/graft/pkg/loader/doc"
	pdfloader "github.com/graftlab/graft/pkg/loader/pdf"
)

type fakeFileLoader struct {
	content string
}

func (f *fakeFileLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return []byte(f.content), nil
}

func TestGraphFileForSelectsLoaderByExtension(t *testing.T) {
	base := &fakeFileLoader{content: "hello"}
	h := &Handler{
		loaders: map[DocumentSource]loaderSet{
			SourceIO: newLoaderSet(base),
		},
	}

	tests := []struct {
		path string
		want any
	}{
		{"notes.txt", base},
		{"report.docx", (*docloader.DocGraphLoader)(nil)},
		{"paper.PDF", (*pdfloader.PDFGraphLoader)(nil)},
	}

	for _, tt := range tests {
		file, err := h.graphFileFor(IngestDocument{Path: tt.path, Source: SourceIO})
		if err != nil {
			t.Fatalf("graphFileFor(%q) returned error: %v", tt.path, err)
		}
		if file.FilePath != tt.path {
			t.Fatalf("expected file path %q, got %q", tt.path, file.FilePath)
		}

		switch tt.want.(type) {
		case *fakeFileLoader:
			if file.Loader != loader.GraphFileLoader(base) {
				t.Fatalf("expected plain loader for %q", tt.path)
			}
		case *docloader.DocGraphLoader:
			if _, ok := file.Loader.(*docloader.DocGraphLoader); !ok {
				t.Fatalf("expected docx loader for %q, got %T", tt.path, file.Loader)
			}
		case *pdfloader.PDFGraphLoader:
			if _, ok := file.Loader.(*pdfloader.PDFGraphLoader); !ok {
				t.Fatalf("expected pdf loader for %q, got %T", tt.path, file.Loader)
			}
		}
	}
}

func TestGraphFileForDefaultsToIOSource(t *testing.T) {
	base := &fakeFileLoader{}
	h := &Handler{
		loaders: map[DocumentSource]loaderSet{
			SourceIO: newLoaderSet(base),
		},
	}

	file, err := h.graphFileFor(IngestDocument{Path: "notes.txt"})
	if err != nil {
		t.Fatalf("graphFileFor returned error: %v", err)
	}
	if file.Loader == nil {
		t.Fatal("expected a loader to be assigned")
	}
}

func TestGraphFileForInlineContent(t *testing.T) {
	h := &Handler{loaders: map[DocumentSource]loaderSet{}}

	file, err := h.graphFileFor(IngestDocument{
		Path:    "inline.md",
		Source:  SourceInline,
		Content: "inline text",
	})
	if err != nil {
		t.Fatalf("graphFileFor returned error: %v", err)
	}
	if file.FileType != loader.GraphFileTypeFile {
		t.Fatalf("expected generic file type, got %q", file.FileType)
	}

	text, err := file.GetText(context.Background())
	if err != nil {
		t.Fatalf("GetText returned error: %v", err)
	}
	if string(text) != "inline text" {
		t.Fatalf("expected inline content, got %q", string(text))
	}
}

func TestRunIDForKeepsMessageRunID(t *testing.T) {
	got := runIDFor(IngestMessage{RunID: "run-42"})
	if got != "run-42" {
		t.Fatalf("expected message run id to be kept, got %q", got)
	}
}

func TestRunIDForMintsWhenMissing(t *testing.T) {
	got := runIDFor(IngestMessage{})
	if got == "" {
		t.Fatal("expected a minted run id for messages without one")
	}
}

func TestGraphFileForUnknownSource(t *testing.T) {
	h := &Handler{loaders: map[DocumentSource]loaderSet{}}

	_, err := h.graphFileFor(IngestDocument{Path: "a.txt", Source: SourceS3})
	if err == nil {
		t.Fatal("expected error for unconfigured source")
	}
}
