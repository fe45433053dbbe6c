package queue

// DocumentSource names where a document's bytes come from.
type DocumentSource string

const (
	SourceIO     DocumentSource = "io"
	SourceWeb    DocumentSource = "web"
	SourceS3     DocumentSource = "s3"
	SourceInline DocumentSource = "inline"
)

// IngestDocument is one document of an ingest request.
type IngestDocument struct {
	Path           string         `json:"path"`
	Source         DocumentSource `json:"source"`
	Content        string         `json:"content,omitempty"`
	CustomEntities []string       `json:"custom_entities,omitempty"`
}

// IngestMessage asks the worker to analyze documents and merge the
// resulting fragments into the graph. The run id correlates one ingest
// run across the enqueueing request, the queue message and the worker's
// log lines.
type IngestMessage struct {
	RunID     string           `json:"run_id,omitempty"`
	GraphID   string           `json:"graph_id"`
	Documents []IngestDocument `json:"documents"`
}

// ConsolidateMessage asks the worker to run a consolidation pass over
// the graph.
type ConsolidateMessage struct {
	GraphID string `json:"graph_id"`
}
