package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/graftlab/graft/pkg/common"
)

type fakeClient struct {
	completions int
	respond     func(name string, prompt string, out any) error
}

func (f *fakeClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...GenerateOption) error {
	f.completions++
	return f.respond(name, prompt, out)
}

func (f *fakeClient) ResetMetrics() {}

func (f *fakeClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func respondWith(entity resolvedEntity) func(string, string, any) error {
	return func(name, prompt string, out any) error {
		data, err := json.Marshal(entity)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
}

func TestResolveEntityConflictKeepsExistingID(t *testing.T) {
	client := &fakeClient{
		respond: respondWith(resolvedEntity{
			ID:             "something_else",
			Name:           "Acme Corp",
			Description:    "Combined record",
			Type:           "organization",
			AttributesJSON: `{"industry":"robotics"}`,
			MetadataJSON:   "{}",
		}),
	}
	resolver, err := NewResolver(NewResolverParams{Client: client})
	if err != nil {
		t.Fatalf("expected resolver, got error: %v", err)
	}

	existing := common.Entity{ID: "acme", Name: "Acme", Type: "organization"}
	proposed := common.Entity{ID: "acme", Name: "Acme Corp", Type: "company"}

	resolved, err := resolver.ResolveEntityConflict(context.Background(), existing, proposed, []string{"acme -[supplies]-> roadrunner"})
	if err != nil {
		t.Fatalf("expected resolution, got error: %v", err)
	}
	if resolved.ID != "acme" {
		t.Fatalf("expected id acme, got %q", resolved.ID)
	}
	if resolved.Name != "Acme Corp" {
		t.Fatalf("expected merged name, got %q", resolved.Name)
	}
	if resolved.Attributes["industry"] != "robotics" {
		t.Fatalf("expected attributes to be parsed, got %v", resolved.Attributes)
	}
}

func TestMergeEntityGroupFallsBackToFirstMemberID(t *testing.T) {
	client := &fakeClient{
		respond: respondWith(resolvedEntity{
			ID:   "invented_by_model",
			Name: "Foo",
			Type: "concept",
		}),
	}
	resolver, err := NewResolver(NewResolverParams{Client: client})
	if err != nil {
		t.Fatalf("expected resolver, got error: %v", err)
	}

	group := []common.Entity{
		{ID: "foo", Name: "Foo", Type: "concept"},
		{ID: "foo_2", Name: "foo", Type: "concept"},
	}

	merged, err := resolver.MergeEntityGroup(context.Background(), group)
	if err != nil {
		t.Fatalf("expected merge, got error: %v", err)
	}
	if merged.ID != "foo" {
		t.Fatalf("expected fallback to first member id, got %q", merged.ID)
	}
}

func TestMergeEntityGroupKeepsKnownID(t *testing.T) {
	client := &fakeClient{
		respond: respondWith(resolvedEntity{
			ID:   "foo_2",
			Name: "Foo",
			Type: "concept",
		}),
	}
	resolver, _ := NewResolver(NewResolverParams{Client: client})

	group := []common.Entity{
		{ID: "foo", Name: "Foo", Type: "concept"},
		{ID: "foo_2", Name: "foo", Type: "concept"},
	}

	merged, err := resolver.MergeEntityGroup(context.Background(), group)
	if err != nil {
		t.Fatalf("expected merge, got error: %v", err)
	}
	if merged.ID != "foo_2" {
		t.Fatalf("expected model-chosen id to survive, got %q", merged.ID)
	}
}

func TestMergeEntityGroupSingletonSkipsModel(t *testing.T) {
	client := &fakeClient{
		respond: func(name, prompt string, out any) error {
			return fmt.Errorf("should not be called")
		},
	}
	resolver, _ := NewResolver(NewResolverParams{Client: client})

	merged, err := resolver.MergeEntityGroup(context.Background(), []common.Entity{
		{ID: "solo", Name: "Solo", Type: "person"},
	})
	if err != nil {
		t.Fatalf("expected passthrough, got error: %v", err)
	}
	if merged.ID != "solo" || client.completions != 0 {
		t.Fatalf("expected singleton passthrough without model call, got %q after %d calls", merged.ID, client.completions)
	}
}

func TestResolverRetriesTransientFailures(t *testing.T) {
	attempts := 0
	client := &fakeClient{
		respond: func(name, prompt string, out any) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("transient")
			}
			return respondWith(resolvedEntity{ID: "acme", Name: "Acme", Type: "organization"})(name, prompt, out)
		},
	}
	resolver, _ := NewResolver(NewResolverParams{Client: client, MaxRetries: 3})

	existing := common.Entity{ID: "acme", Name: "Acme", Type: "organization"}
	proposed := common.Entity{ID: "acme", Name: "ACME Inc", Type: "organization"}

	resolved, err := resolver.ResolveEntityConflict(context.Background(), existing, proposed, nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if resolved.Name != "Acme" {
		t.Fatalf("expected resolved record, got %+v", resolved)
	}
}

func TestResolverGivesUpAfterMaxRetries(t *testing.T) {
	client := &fakeClient{
		respond: func(name, prompt string, out any) error {
			return fmt.Errorf("model unavailable")
		},
	}
	resolver, _ := NewResolver(NewResolverParams{Client: client, MaxRetries: 2})

	_, err := resolver.ResolveEntityConflict(context.Background(),
		common.Entity{ID: "a", Name: "A"},
		common.Entity{ID: "a", Name: "B"},
		nil,
	)
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if client.completions != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.completions)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected cause in error chain, got %v", err)
	}
}

func TestResolverRejectsNamelessResponse(t *testing.T) {
	client := &fakeClient{
		respond: respondWith(resolvedEntity{ID: "a", Name: "  "}),
	}
	resolver, _ := NewResolver(NewResolverParams{Client: client, MaxRetries: 1})

	_, err := resolver.ResolveEntityConflict(context.Background(),
		common.Entity{ID: "a", Name: "A"},
		common.Entity{ID: "a", Name: "B"},
		nil,
	)
	if err == nil {
		t.Fatal("expected error for nameless entity")
	}
}
