package lang

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tryteex/tiny-web-sub001/data"
)

func writeLangFile(t *testing.T, root, module, class, code, content string) {
	t.Helper()
	dir := filepath.Join(root, "app", module, class)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, code+".lang"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadParsesKeyValueLines(t *testing.T) {
	root := t.TempDir()
	writeLangFile(t, root, "blog", "post", "en", "about=About\narticles=Articles\n# a comment line, skipped\nempty_ignored\n")

	items := []Item{{ID: 1, Code: "en", Lang: "en", Name: "English"}}
	b := Load(root, "en", items, nil)

	v, ok := b.Lookup(1, data.FNV1a64("blog"), data.FNV1a64("post"), "about")
	if !ok || v != "About" {
		t.Fatalf("Lookup(about) = %q, %v", v, ok)
	}
	v, ok = b.Lookup(1, data.FNV1a64("blog"), data.FNV1a64("post"), "articles")
	if !ok || v != "Articles" {
		t.Fatalf("Lookup(articles) = %q, %v", v, ok)
	}
}

func TestLoadIgnoresUnconfiguredLanguageCode(t *testing.T) {
	root := t.TempDir()
	writeLangFile(t, root, "blog", "post", "fr", "about=A propos\n")

	items := []Item{{ID: 1, Code: "en", Lang: "en", Name: "English"}}
	b := Load(root, "en", items, nil)

	if _, ok := b.Lookup(1, data.FNV1a64("blog"), data.FNV1a64("post"), "about"); ok {
		t.Fatal("fr.lang should have been skipped: fr is not a configured language code")
	}
}

func TestLookupMissingKeyReturnsFalse(t *testing.T) {
	root := t.TempDir()
	writeLangFile(t, root, "blog", "post", "en", "about=About\n")
	items := []Item{{ID: 1, Code: "en"}}
	b := Load(root, "en", items, nil)

	if _, ok := b.Lookup(1, data.FNV1a64("blog"), data.FNV1a64("post"), "missing"); ok {
		t.Fatal("missing key should report ok=false")
	}
}

func TestLoadWithNoLanguagesConfigured(t *testing.T) {
	root := t.TempDir()
	b := Load(root, "en", nil, nil)
	if len(b.List) != 0 {
		t.Fatalf("List = %+v, want empty", b.List)
	}
}

func TestDefaultLanguageID(t *testing.T) {
	root := t.TempDir()
	items := []Item{{ID: 1, Code: "en"}, {ID: 2, Code: "uk"}}
	b := Load(root, "uk", items, nil)
	if b.Default != 2 {
		t.Fatalf("Default = %d, want 2", b.Default)
	}
}
