package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tryteex/tiny-web-sub001/data"
)

func writeTemplateFile(t *testing.T, root, module, class, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "app", module, class)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".html"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTemplatesStoresRawBytes(t *testing.T) {
	root := t.TempDir()
	writeTemplateFile(t, root, "blog", "post", "show", "<h1>{{title}}</h1>")

	tpl := LoadTemplates(root, nil)
	m, ok := tpl.ClassMap(data.FNV1a64("blog"), data.FNV1a64("post"))
	if !ok {
		t.Fatal("ClassMap not found for blog/post")
	}
	content, ok := m[data.FNV1a64("show")]
	if !ok || string(content) != "<h1>{{title}}</h1>" {
		t.Fatalf("content = %q, ok=%v", content, ok)
	}
}

func TestLoadTemplatesDoesNotInterpretContent(t *testing.T) {
	root := t.TempDir()
	writeTemplateFile(t, root, "blog", "post", "show", "{{ this is not parsed }}")

	tpl := LoadTemplates(root, nil)
	m, _ := tpl.ClassMap(data.FNV1a64("blog"), data.FNV1a64("post"))
	content := m[data.FNV1a64("show")]
	if string(content) != "{{ this is not parsed }}" {
		t.Fatalf("content was transformed: %q", content)
	}
}

func TestClassMapMissingReturnsFalse(t *testing.T) {
	root := t.TempDir()
	tpl := LoadTemplates(root, nil)
	if _, ok := tpl.ClassMap(data.FNV1a64("nope"), data.FNV1a64("nope")); ok {
		t.Fatal("expected ok=false for an unconfigured module/class")
	}
}

func TestLoadTemplatesIgnoresNonHTMLFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app", "blog", "post")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	tpl := LoadTemplates(root, nil)
	if _, ok := tpl.ClassMap(data.FNV1a64("blog"), data.FNV1a64("post")); ok {
		t.Fatal("a .txt file should not have produced a ClassMap entry")
	}
}
