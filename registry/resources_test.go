package registry

import (
	"errors"
	"testing"

	"github.com/arcwell/mcpengine/mcp"
)

func TestResourceRegistryReadText(t *testing.T) {
	reg := NewResourceRegistry(
		TextResource("mem://greeting", "greeting", "text/plain", "hello"),
	)

	contents, err := reg.Read("mem://greeting")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %+v", contents)
	}
	if contents[0].Text != "hello" || contents[0].MimeType != "text/plain" {
		t.Fatalf("contents[0] = %+v", contents[0])
	}
}

func TestResourceRegistryReadNotFound(t *testing.T) {
	reg := NewResourceRegistry()

	_, err := reg.Read("mem://missing")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestResourceRegistryFirstRegistrationWins(t *testing.T) {
	reg := NewResourceRegistry(
		TextResource("mem://x", "x", "text/plain", "first"),
	)
	if reg.Register(TextResource("mem://x", "x", "text/plain", "second")) {
		t.Fatal("duplicate URI registration should be refused")
	}

	contents, err := reg.Read("mem://x")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if contents[0].Text != "first" {
		t.Fatalf("got %q, want first registration to win", contents[0].Text)
	}
}

func TestResourceRegistryListOrderAndRemove(t *testing.T) {
	reg := NewResourceRegistry(
		TextResource("mem://a", "a", "text/plain", ""),
		TextResource("mem://b", "b", "text/plain", ""),
		TextResource("mem://c", "c", "text/plain", ""),
	)

	uris := func() []string {
		var out []string
		for _, res := range reg.List() {
			out = append(out, res.URI)
		}
		return out
	}

	if got := uris(); !equalStrings(got, []string{"mem://a", "mem://b", "mem://c"}) {
		t.Fatalf("List order = %v", got)
	}
	if !reg.Remove("mem://b") {
		t.Fatal("Remove = false")
	}
	if got := uris(); !equalStrings(got, []string{"mem://a", "mem://c"}) {
		t.Fatalf("List after remove = %v", got)
	}
	if _, err := reg.Read("mem://b"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("read after remove: %v", err)
	}
}

func TestResourceRegistryTemplates(t *testing.T) {
	reg := NewResourceRegistry()
	if reg.HasTemplates() {
		t.Fatal("fresh registry should have no templates")
	}

	reg.RegisterTemplate(mcp.ResourceTemplate{
		URITemplate: "mem://users/{id}",
		Name:        "user",
	})
	reg.RegisterTemplate(mcp.ResourceTemplate{
		URITemplate: "mem://teams/{id}",
		Name:        "team",
	})

	tmpls := reg.ListTemplates()
	if len(tmpls) != 2 {
		t.Fatalf("templates = %+v", tmpls)
	}
	if tmpls[0].Name != "user" || tmpls[1].Name != "team" {
		t.Fatalf("template order = %+v", tmpls)
	}
	if !reg.HasTemplates() {
		t.Fatal("HasTemplates = false")
	}
}
