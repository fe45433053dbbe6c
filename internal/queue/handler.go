package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/graftlab/graft/internal/docstore"
	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/fusion"
	"github.com/graftlab/graft/pkg/leaselock"
	"github.com/graftlab/graft/pkg/loader"
	docloader "github.com/graftlab/graft/pkg/loader/doc"
	pdfloader "github.com/graftlab/graft/pkg/loader/pdf"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/report"

	"github.com/graftlab/graft/pkg/analyze"
)

// Handler processes queue messages. It owns the full ingest path:
// loading, analysis, persistence and fusion.
type Handler struct {
	analyzer  *analyze.Analyzer
	processor *fusion.Processor
	docs      *docstore.Store
	lease     *leaselock.Client

	loaders map[DocumentSource]loaderSet

	reportDir      string
	defaultGraphID string
}

// loaderSet is a base loader together with its format-aware wrappers.
type loaderSet struct {
	plain loader.GraphFileLoader
	doc   loader.GraphFileLoader
	pdf   loader.GraphFileLoader
}

// NewHandlerParams defines the dependencies of a Handler. S3Loader is
// optional; the other loaders and components are required.
type NewHandlerParams struct {
	Analyzer  *analyze.Analyzer
	Processor *fusion.Processor
	Docs      *docstore.Store
	Lease     *leaselock.Client

	IOLoader  loader.GraphFileLoader
	WebLoader loader.GraphFileLoader
	S3Loader  loader.GraphFileLoader

	ReportDir      string
	DefaultGraphID string
}

// NewHandler creates a Handler and wires format-aware loader wrappers
// around each configured source.
func NewHandler(params NewHandlerParams) (*Handler, error) {
	if params.Analyzer == nil || params.Processor == nil {
		return nil, fmt.Errorf("handler requires an analyzer and a fusion processor")
	}
	if params.Docs == nil || params.Lease == nil {
		return nil, fmt.Errorf("handler requires a document store and a lease client")
	}
	if params.IOLoader == nil || params.WebLoader == nil {
		return nil, fmt.Errorf("handler requires io and web loaders")
	}

	loaders := map[DocumentSource]loaderSet{
		SourceIO:  newLoaderSet(params.IOLoader),
		SourceWeb: newLoaderSet(params.WebLoader),
	}
	if params.S3Loader != nil {
		loaders[SourceS3] = newLoaderSet(params.S3Loader)
	}

	defaultGraphID := params.DefaultGraphID
	if defaultGraphID == "" {
		defaultGraphID = "default"
	}

	return &Handler{
		analyzer:       params.Analyzer,
		processor:      params.Processor,
		docs:           params.Docs,
		lease:          params.Lease,
		loaders:        loaders,
		reportDir:      params.ReportDir,
		defaultGraphID: defaultGraphID,
	}, nil
}

func newLoaderSet(base loader.GraphFileLoader) loaderSet {
	return loaderSet{
		plain: base,
		doc:   docloader.NewDocGraphLoader(base),
		pdf:   pdfloader.NewPDFGraphLoader(base),
	}
}

// ProcessIngest analyzes the documents of an ingest message and merges
// the resulting fragments into the graph under the graph's write lease.
// Unchanged documents are skipped via their content hash.
func (h *Handler) ProcessIngest(ctx context.Context, body string) error {
	var msg IngestMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("failed to decode ingest message: %w", err)
	}
	if len(msg.Documents) == 0 {
		logger.Warn("[Ingest] Message without documents, nothing to do")
		return nil
	}
	graphID := msg.GraphID
	if graphID == "" {
		graphID = h.defaultGraphID
	}
	runID := runIDFor(msg)
	logger.Info("[Ingest] Run started", "run", runID, "graph", graphID, "documents", len(msg.Documents))

	var errs []error
	var files []loader.GraphFile

	for _, document := range msg.Documents {
		file, err := h.graphFileFor(document)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		content, err := file.GetText(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load %s: %w", document.Path, err))
			continue
		}

		record, changed, err := h.docs.UpsertDocument(ctx, graphID, document.Path, docstore.HashContent(content))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !changed {
			logger.Info("[Ingest] Document unchanged, skipping", "run", runID, "path", document.Path)
			continue
		}

		file.ID = record.ID
		files = append(files, file)
	}

	if len(files) == 0 {
		logger.Info("[Ingest] No changed documents", "run", runID, "graph", graphID)
		return errors.Join(errs...)
	}

	var fragments []common.Fragment
	for res := range h.analyzer.Produce(ctx, files) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		if res.Fragment.KnowledgeGraph == nil {
			continue
		}
		if err := h.docs.SaveFragment(ctx, graphID, res.DocumentID, res.Fragment); err != nil {
			errs = append(errs, err)
		}
		fragments = append(fragments, res.Fragment)
	}

	if len(fragments) > 0 {
		err := h.lease.WithLease(ctx, leaseKey(graphID), leaseOptions(), func(ctx context.Context) error {
			_, err := h.processor.MergeAnalysis(ctx, fragments)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("fusion failed for graph %s: %w", graphID, err))
		} else {
			logger.Info("[Ingest] Fragments merged", "run", runID, "graph", graphID, "fragments", len(fragments))
		}
	}

	if err := h.writeReport(ctx, graphID); err != nil {
		logger.Error("[Ingest] Failed to write report", "graph", graphID, "err", err)
	}

	return errors.Join(errs...)
}

// ProcessConsolidate runs one consolidation pass under the graph's
// write lease.
func (h *Handler) ProcessConsolidate(ctx context.Context, body string) error {
	var msg ConsolidateMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("failed to decode consolidate message: %w", err)
	}
	graphID := msg.GraphID
	if graphID == "" {
		graphID = h.defaultGraphID
	}

	err := h.lease.WithLease(ctx, leaseKey(graphID), leaseOptions(), func(ctx context.Context) error {
		return h.processor.Consolidate(ctx)
	})
	if err != nil {
		return fmt.Errorf("consolidation failed for graph %s: %w", graphID, err)
	}
	logger.Info("[Consolidate] Consolidation pass finished", "graph", graphID)

	if err := h.writeReport(ctx, graphID); err != nil {
		logger.Error("[Consolidate] Failed to write report", "graph", graphID, "err", err)
	}
	return nil
}

// BuildReport builds a report for the current graph snapshot, including
// per-document fragment summaries when a document store is configured.
func (h *Handler) BuildReport(ctx context.Context, graphID string) (report.Report, error) {
	var summaries []string
	if h.docs != nil {
		var err error
		summaries, err = h.docs.ListSummaries(ctx, graphID)
		if err != nil {
			return report.Report{}, err
		}
	}
	graph := h.processor.GetKnowledgeGraph()
	return report.Build(&graph, summaries), nil
}

func (h *Handler) writeReport(ctx context.Context, graphID string) error {
	if h.reportDir == "" {
		return nil
	}

	rep, err := h.BuildReport(ctx, graphID)
	if err != nil {
		return err
	}

	jsonBytes, err := rep.JSON()
	if err != nil {
		return err
	}
	mdBytes, err := rep.Markdown()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(h.reportDir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(h.reportDir, "report_"+graphID)
	if err := os.WriteFile(base+".json", jsonBytes, 0o644); err != nil {
		return err
	}
	return os.WriteFile(base+".md", mdBytes, 0o644)
}

func (h *Handler) graphFileFor(document IngestDocument) (loader.GraphFile, error) {
	if document.Source == SourceInline {
		return loader.NewGraphGenericFile(loader.NewGraphFileParams{
			ID:             document.Path,
			FilePath:       document.Path,
			CustomEntities: document.CustomEntities,
		}, document.Content), nil
	}

	source := document.Source
	if source == "" {
		source = SourceIO
	}
	set, ok := h.loaders[source]
	if !ok {
		return loader.GraphFile{}, fmt.Errorf("no loader configured for source %q", source)
	}

	selected := set.plain
	switch strings.ToLower(filepath.Ext(document.Path)) {
	case ".docx":
		selected = set.doc
	case ".pdf":
		selected = set.pdf
	}

	return loader.NewGraphDocumentFile(loader.NewGraphFileParams{
		ID:             document.Path,
		FilePath:       document.Path,
		CustomEntities: document.CustomEntities,
		Loader:         selected,
	}), nil
}

// runIDFor returns the message's run id, minting one for hand-published
// messages so their log lines still correlate.
func runIDFor(msg IngestMessage) string {
	if msg.RunID != "" {
		return msg.RunID
	}
	generated, err := util.NewRunID()
	if err != nil {
		return "unknown"
	}
	return generated
}

func leaseKey(graphID string) string {
	return "graph:" + graphID
}

func leaseOptions() leaselock.Options {
	return leaselock.Options{
		TTL:        5 * time.Minute,
		RenewEvery: time.Minute,
		Wait:       true,
	}
}
