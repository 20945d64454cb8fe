package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/arcwell/mcpengine/mcp"
)

func reviewPrompt() StaticPrompt {
	return StaticPrompt{
		Descriptor: mcp.Prompt{
			Name:        "code-review",
			Description: "Reviews a snippet of code",
			Arguments: []mcp.PromptArgument{
				{Name: "language", Required: true},
				{Name: "style"},
			},
		},
		Handler: func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			var lang string
			if err := json.Unmarshal(req.Arguments["language"], &lang); err != nil {
				return nil, err
			}
			return &mcp.GetPromptResult{
				Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf("Review this %s code.", lang)}},
				}},
			}, nil
		},
	}
}

func TestPromptRegistryGet(t *testing.T) {
	reg := NewPromptRegistry(reviewPrompt())

	res, err := reg.Get(context.Background(), &mcp.GetPromptRequest{
		Name:      "code-review",
		Arguments: map[string]json.RawMessage{"language": json.RawMessage(`"go"`)},
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Role != mcp.RoleUser {
		t.Fatalf("messages = %+v", res.Messages)
	}
	if got := res.Messages[0].Content[0].Text; got != "Review this go code." {
		t.Fatalf("text = %q", got)
	}
}

func TestPromptRegistryMissingRequiredArgument(t *testing.T) {
	reg := NewPromptRegistry(reviewPrompt())

	_, err := reg.Get(context.Background(), &mcp.GetPromptRequest{
		Name:      "code-review",
		Arguments: map[string]json.RawMessage{"style": json.RawMessage(`"terse"`)},
	})
	if !errors.Is(err, ErrMissingPromptArgument) {
		t.Fatalf("err = %v, want ErrMissingPromptArgument", err)
	}
}

func TestPromptRegistryNotFound(t *testing.T) {
	reg := NewPromptRegistry()

	_, err := reg.Get(context.Background(), &mcp.GetPromptRequest{Name: "missing"})
	if !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("err = %v, want ErrPromptNotFound", err)
	}
}

func TestPromptRegistryFirstRegistrationWins(t *testing.T) {
	mk := func(text string) StaticPrompt {
		return NewPrompt(mcp.Prompt{Name: "dup"}, mcp.PromptMessage{
			Role:    mcp.RoleUser,
			Content: []mcp.ContentBlock{{Type: "text", Text: text}},
		})
	}

	reg := NewPromptRegistry(mk("first"))
	if reg.Register(mk("second")) {
		t.Fatal("duplicate prompt registration should be refused")
	}

	res, err := reg.Get(context.Background(), &mcp.GetPromptRequest{Name: "dup"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Messages[0].Content[0].Text != "first" {
		t.Fatal("first registration should win")
	}
}

func TestPromptRegistryListOrderAndRemove(t *testing.T) {
	reg := NewPromptRegistry(
		NewPrompt(mcp.Prompt{Name: "a"}),
		NewPrompt(mcp.Prompt{Name: "b"}),
		NewPrompt(mcp.Prompt{Name: "c"}),
	)

	names := func() []string {
		var out []string
		for _, p := range reg.List() {
			out = append(out, p.Name)
		}
		return out
	}

	if got := names(); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("List order = %v", got)
	}
	if !reg.Remove("b") {
		t.Fatal("Remove = false")
	}
	if got := names(); !equalStrings(got, []string{"a", "c"}) {
		t.Fatalf("List after remove = %v", got)
	}
}
