package analyze

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/graftlab/graft/pkg/ai"
	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/loader"
)

type fakeAIClient struct {
	summary string
	extract func(prompt string) (extractResponse, error)
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return f.summary, nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	res, err := f.extract(prompt)
	if err != nil {
		return err
	}
	*(out.(*extractResponse)) = res
	return nil
}

func (f *fakeAIClient) ResetMetrics() {}

func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func inlineDocument(id, text string) loader.GraphFile {
	return loader.NewGraphGenericFile(loader.NewGraphFileParams{
		ID:       id,
		FilePath: id + ".txt",
	}, text)
}

func TestAnalyzeDocumentBuildsFragment(t *testing.T) {
	client := &fakeAIClient{
		summary: "A document about Acme and its founder.",
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{
				Entities: []extractEntity{
					{EntityName: "Acme Corp", EntityType: "ORGANIZATION", EntityDescription: "A company."},
					{EntityName: "Jane Doe", EntityType: "PERSON", EntityDescription: "The founder."},
				},
				Relationships: []extractRelationship{
					{SourceEntity: "Jane Doe", TargetEntity: "Acme Corp", RelationshipType: "founded", RelationshipDescription: "Jane founded Acme."},
				},
			}, nil
		},
	}
	analyzer, err := NewAnalyzer(NewAnalyzerParams{Client: client})
	if err != nil {
		t.Fatalf("expected analyzer, got error: %v", err)
	}

	fragment, err := analyzer.AnalyzeDocument(context.Background(), inlineDocument("doc1", "Jane Doe founded Acme Corp."))
	if err != nil {
		t.Fatalf("expected fragment, got error: %v", err)
	}
	if fragment.KnowledgeGraph == nil {
		t.Fatal("expected a knowledge graph on the fragment")
	}
	if fragment.Summary != "A document about Acme and its founder." {
		t.Fatalf("unexpected summary: %q", fragment.Summary)
	}

	ids := make([]string, 0, len(fragment.KnowledgeGraph.Entities))
	for _, e := range fragment.KnowledgeGraph.Entities {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	want := []string{"acme_corp", "jane_doe"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("expected entity ids %v, got %v", want, ids)
	}

	if len(fragment.KnowledgeGraph.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(fragment.KnowledgeGraph.Relationships))
	}
	rel := fragment.KnowledgeGraph.Relationships[0]
	if rel.ID != "jane_doe__founded__acme_corp" {
		t.Fatalf("unexpected relationship id: %q", rel.ID)
	}
}

func TestAnalyzeDocumentDropsDanglingRelationships(t *testing.T) {
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{
				Entities: []extractEntity{
					{EntityName: "Acme Corp", EntityType: "ORGANIZATION"},
				},
				Relationships: []extractRelationship{
					{SourceEntity: "Acme Corp", TargetEntity: "Unknown Entity", RelationshipType: "owns"},
				},
			}, nil
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client})

	fragment, err := analyzer.AnalyzeDocument(context.Background(), inlineDocument("doc1", "Some text."))
	if err != nil {
		t.Fatalf("expected fragment, got error: %v", err)
	}
	if len(fragment.KnowledgeGraph.Relationships) != 0 {
		t.Fatalf("expected dangling relationship to be dropped, got %d", len(fragment.KnowledgeGraph.Relationships))
	}
}

func TestAnalyzeDocumentEmptyTextYieldsEmptyFragment(t *testing.T) {
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{}, fmt.Errorf("should not be called")
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client})

	fragment, err := analyzer.AnalyzeDocument(context.Background(), inlineDocument("doc1", "   "))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fragment.KnowledgeGraph != nil {
		t.Fatal("expected empty fragment for empty document")
	}
}

func TestAnalyzeDocumentRetriesExtraction(t *testing.T) {
	attempts := 0
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			attempts++
			if attempts == 1 {
				return extractResponse{}, fmt.Errorf("transient")
			}
			return extractResponse{
				Entities: []extractEntity{{EntityName: "Acme", EntityType: "ORGANIZATION"}},
			}, nil
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client, MaxRetries: 3})

	fragment, err := analyzer.AnalyzeDocument(context.Background(), inlineDocument("doc1", "Acme."))
	if err != nil {
		t.Fatalf("expected retry to succeed, got error: %v", err)
	}
	if len(fragment.KnowledgeGraph.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fragment.KnowledgeGraph.Entities))
	}
}

func TestAnalyzeDocumentCombinesDuplicateEntities(t *testing.T) {
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{
				Entities: []extractEntity{
					{EntityName: "Acme Corp", EntityType: "ORGANIZATION", EntityDescription: "A company."},
					{EntityName: "acme corp", EntityType: "ORGANIZATION", EntityDescription: "Makes anvils."},
				},
				Relationships: []extractRelationship{
					{SourceEntity: "Acme Corp", TargetEntity: "acme corp", RelationshipType: "same_as"},
					{SourceEntity: "acme corp", TargetEntity: "Acme Corp", RelationshipType: "same_as"},
				},
			}, nil
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client})

	fragment, err := analyzer.AnalyzeDocument(context.Background(), inlineDocument("doc1", "Acme Corp makes anvils."))
	if err != nil {
		t.Fatalf("expected fragment, got error: %v", err)
	}
	if len(fragment.KnowledgeGraph.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fragment.KnowledgeGraph.Entities))
	}
	entity := fragment.KnowledgeGraph.Entities[0]
	if entity.Description != "A company. Makes anvils." {
		t.Fatalf("expected joined description, got %q", entity.Description)
	}
	if len(fragment.KnowledgeGraph.Relationships) != 1 {
		t.Fatalf("expected duplicate triples to collapse to 1 relationship, got %d", len(fragment.KnowledgeGraph.Relationships))
	}
}

func TestMergeChunkGraphCombinesRecordsInPlace(t *testing.T) {
	dst := &common.KnowledgeGraph{
		Entities: []common.Entity{
			{ID: "acme", Name: "Acme", Description: "A company.", Attributes: map[string]any{"hq": "berlin"}},
		},
		Relationships: []common.Relationship{
			{ID: "jane__works_for__acme", Source: "jane", Target: "acme", Type: "works_for", Attributes: map[string]any{"since": "2021"}},
		},
	}
	src := &common.KnowledgeGraph{
		Entities: []common.Entity{
			{ID: "acme", Name: "Acme", Description: "Makes anvils.", Attributes: map[string]any{"industry": "manufacturing"}},
			{ID: "jane", Name: "Jane", Type: "PERSON"},
		},
		Relationships: []common.Relationship{
			{ID: "jane__works_for__acme", Source: "jane", Target: "acme", Type: "works_for", Attributes: map[string]any{"role": "founder"}},
			{ID: "acme__based_in__berlin", Source: "acme", Target: "berlin", Type: "based_in"},
		},
	}

	mergeChunkGraph(dst, src)

	if len(dst.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(dst.Entities))
	}
	acme, found := dst.FindEntity("acme")
	if !found {
		t.Fatal("expected acme to survive the merge")
	}
	if acme.Description != "A company. Makes anvils." {
		t.Fatalf("expected joined description, got %q", acme.Description)
	}
	if acme.Attributes["hq"] != "berlin" || acme.Attributes["industry"] != "manufacturing" {
		t.Fatalf("expected unioned attributes, got %v", acme.Attributes)
	}

	if len(dst.Relationships) != 2 {
		t.Fatalf("expected 2 relationships, got %d", len(dst.Relationships))
	}
	rel, found := dst.FindRelationship("jane__works_for__acme")
	if !found {
		t.Fatal("expected shared relationship to survive the merge")
	}
	if rel.Attributes["since"] != "2021" || rel.Attributes["role"] != "founder" {
		t.Fatalf("expected unioned relationship attributes, got %v", rel.Attributes)
	}
}

func TestProduceStreamsPerDocumentResults(t *testing.T) {
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{
				Entities: []extractEntity{{EntityName: "Acme", EntityType: "ORGANIZATION"}},
			}, nil
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client, ParallelMax: 2})

	files := []loader.GraphFile{
		inlineDocument("doc1", "Acme one."),
		inlineDocument("doc2", "Acme two."),
		inlineDocument("doc3", "Acme three."),
	}

	results := map[string]FragmentResult{}
	for res := range analyzer.Produce(context.Background(), files) {
		results[res.DocumentID] = res
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for id, res := range results {
		if res.Err != nil {
			t.Fatalf("expected success for %s, got %v", id, res.Err)
		}
		if res.Fragment.KnowledgeGraph == nil {
			t.Fatalf("expected fragment graph for %s", id)
		}
	}
}

func TestProduceReportsPerDocumentFailures(t *testing.T) {
	client := &fakeAIClient{
		extract: func(prompt string) (extractResponse, error) {
			return extractResponse{}, fmt.Errorf("model down")
		},
	}
	analyzer, _ := NewAnalyzer(NewAnalyzerParams{Client: client, MaxRetries: 1})

	files := []loader.GraphFile{
		inlineDocument("doc1", "Acme one."),
		inlineDocument("doc2", ""),
	}

	results := map[string]FragmentResult{}
	for res := range analyzer.Produce(context.Background(), files) {
		results[res.DocumentID] = res
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["doc1"].Err == nil {
		t.Fatal("expected doc1 to fail")
	}
	if results["doc2"].Err != nil {
		t.Fatalf("expected empty doc2 to succeed, got %v", results["doc2"].Err)
	}
}
