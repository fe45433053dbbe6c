package loader

import (
	"context"
)

type GraphFileType string

const (
	GraphFileTypeDocument GraphFileType = "document"
	GraphFileTypeFile     GraphFileType = "file"
)

// GraphFile represents a document that can be analyzed into graph
// fragments. It carries metadata such as the file path, maximum token
// limit per chunk, and optional custom entity types.
//
// The actual content is retrieved via the associated GraphFileLoader.
type GraphFile struct {
	ID             string
	FilePath       string
	FileType       GraphFileType
	MaxTokens      int
	CustomEntities []string
	Loader         GraphFileLoader
	Description    string
}

// NewGraphFileParams defines the input parameters for creating a new GraphFile
// instance. It is used by the constructor functions to initialize GraphFile
// values with consistent metadata and loader configuration.
type NewGraphFileParams struct {
	ID             string
	FilePath       string
	MaxTokens      int
	CustomEntities []string
	Loader         GraphFileLoader
}

// NewGraphDocumentFile creates a new GraphFile of type GraphFileTypeDocument
// using the provided parameters. This is used for text-based documents such
// as PDFs, Word files, plain text files, or web pages.
func NewGraphDocumentFile(
	params NewGraphFileParams,
) GraphFile {
	return GraphFile{
		ID:             params.ID,
		FilePath:       params.FilePath,
		FileType:       GraphFileTypeDocument,
		MaxTokens:      params.MaxTokens,
		Loader:         params.Loader,
		CustomEntities: params.CustomEntities,
	}
}

// NewGraphGenericFile creates a new GraphFile of type GraphFileTypeFile
// whose content is the given description string. This is used for inline
// text that arrives without a backing file, e.g. request bodies.
func NewGraphGenericFile(
	params NewGraphFileParams,
	description string,
) GraphFile {
	return GraphFile{
		ID:             params.ID,
		FilePath:       params.FilePath,
		FileType:       GraphFileTypeFile,
		MaxTokens:      params.MaxTokens,
		Loader:         params.Loader,
		CustomEntities: params.CustomEntities,
		Description:    description,
	}
}

// GetText retrieves the raw text content of the file using its Loader.
//
// Example:
//
//	text, err := file.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (f *GraphFile) GetText(ctx context.Context) ([]byte, error) {
	if f.FileType == GraphFileTypeFile {
		return []byte(f.Description), nil
	}
	return f.Loader.GetFileText(ctx, *f)
}

// GraphFileLoader defines the interface for loading the contents of a GraphFile.
// Implementations may load files from disk, cloud storage, or other sources.
type GraphFileLoader interface {
	GetFileText(ctx context.Context, file GraphFile) ([]byte, error)
}
