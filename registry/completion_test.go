package registry

import (
	"fmt"
	"testing"

	"github.com/arcwell/mcpengine/mcp"
)

func TestCompletionRanking(t *testing.T) {
	reg := NewCompletionRegistry()
	reg.RegisterPromptValues("code-review", "language", "alpha", "albert", "beta")

	testCases := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "prefix matches lead in declaration order", value: "al", want: []string{"alpha", "albert", "beta"}},
		{name: "empty value keeps declaration order", value: "", want: []string{"alpha", "albert", "beta"}},
		{name: "single match floats to front", value: "b", want: []string{"beta", "alpha", "albert"}},
		{name: "no match keeps declaration order", value: "z", want: []string{"alpha", "albert", "beta"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := reg.Complete(&mcp.CompleteRequest{
				Ref:      mcp.CompleteRef{Type: mcp.CompleteRefPrompt, Name: "code-review"},
				Argument: mcp.CompleteArgument{Name: "language", Value: tc.value},
			})
			if !equalStrings(got.Values, tc.want) {
				t.Fatalf("values = %v, want %v", got.Values, tc.want)
			}
			if got.Total != len(tc.want) {
				t.Fatalf("total = %d, want %d", got.Total, len(tc.want))
			}
			if got.HasMore {
				t.Fatal("HasMore should be false for a small set")
			}
		})
	}
}

func TestCompletionResourceRef(t *testing.T) {
	reg := NewCompletionRegistry()
	reg.RegisterResourceValues("mem://users/{id}", "id", "u-1", "u-2")

	got := reg.Complete(&mcp.CompleteRequest{
		Ref:      mcp.CompleteRef{Type: mcp.CompleteRefResource, URI: "mem://users/{id}"},
		Argument: mcp.CompleteArgument{Name: "id", Value: "u-"},
	})
	if !equalStrings(got.Values, []string{"u-1", "u-2"}) {
		t.Fatalf("values = %v", got.Values)
	}
}

func TestCompletionUnknownTarget(t *testing.T) {
	reg := NewCompletionRegistry()

	got := reg.Complete(&mcp.CompleteRequest{
		Ref:      mcp.CompleteRef{Type: mcp.CompleteRefPrompt, Name: "nope"},
		Argument: mcp.CompleteArgument{Name: "x", Value: "a"},
	})
	if got.Values == nil || len(got.Values) != 0 {
		t.Fatalf("values = %#v, want empty non-nil slice", got.Values)
	}
	if got.HasMore || got.Total != 0 {
		t.Fatalf("got = %+v", got)
	}
}

func TestCompletionTruncatesLargeSets(t *testing.T) {
	values := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		values = append(values, fmt.Sprintf("v-%03d", i))
	}

	reg := NewCompletionRegistry()
	reg.RegisterPromptValues("big", "arg", values...)

	got := reg.Complete(&mcp.CompleteRequest{
		Ref:      mcp.CompleteRef{Type: mcp.CompleteRefPrompt, Name: "big"},
		Argument: mcp.CompleteArgument{Name: "arg", Value: ""},
	})
	if len(got.Values) != maxCompletionValues {
		t.Fatalf("len = %d, want %d", len(got.Values), maxCompletionValues)
	}
	if got.Total != 150 {
		t.Fatalf("total = %d, want 150", got.Total)
	}
	if !got.HasMore {
		t.Fatal("HasMore should be true when truncated")
	}
}

func TestCompletionLaterRegistrationReplaces(t *testing.T) {
	reg := NewCompletionRegistry()
	reg.RegisterPromptValues("p", "a", "one")
	reg.RegisterPromptValues("p", "a", "two", "three")

	got := reg.Complete(&mcp.CompleteRequest{
		Ref:      mcp.CompleteRef{Type: mcp.CompleteRefPrompt, Name: "p"},
		Argument: mcp.CompleteArgument{Name: "a"},
	})
	if !equalStrings(got.Values, []string{"two", "three"}) {
		t.Fatalf("values = %v", got.Values)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}
