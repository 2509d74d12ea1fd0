package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotoba/internal/fileid"
	"github.com/hyperjump/kotoba/internal/storage"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".csv", []string{"csv"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestLanguageFor(t *testing.T) {
	im := NewImporter(nil, nil, WithLanguages([]string{"en", "fr", "de"}, "en"))
	tests := []struct {
		path string
		want string
	}{
		{"/lex/words.txt", "en"},
		{"/lex/words.fr.txt", "fr"},
		{"/lex/DE_nouns.csv", "de"},
		{"/lex/fr/verbs.txt", "fr"},
		{"/lex/french.txt", "en"},
	}
	for _, tt := range tests {
		if got := im.LanguageFor(tt.path); got != tt.want {
			t.Errorf("LanguageFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func testImporter(t *testing.T, dir string) (*Importer, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db", "lexicon.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	im := NewImporter(store, nil,
		WithLanguages([]string{"en", "fr"}, "en"),
		WithExtensions([]string{".txt", ".tsv", ".xlsx"}),
	)
	return im, store
}

func TestImportFile_createAndUpdate(t *testing.T) {
	dir := t.TempDir()
	im, store := testImporter(t, dir)
	ctx := context.Background()

	path := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(path, []byte("Apple\t10\nbanana\nAPPLE\t3\n\n"), 0600); err != nil {
		t.Fatal(err)
	}
	st, err := im.ImportFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 1 || st.Words != 2 {
		t.Errorf("stats: %+v", st)
	}
	words, _ := store.ListWords(ctx, []string{"en"})
	if len(words) != 2 || words[0].Text != "Apple" || words[0].Frequency != 10 {
		t.Fatalf("words: %+v", words)
	}
	if words[0].Source != fileid.SourceID(path) {
		t.Errorf("source: %q", words[0].Source)
	}

	st, err = im.ImportFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Skipped != 1 || st.Changed() {
		t.Errorf("unchanged file should be skipped: %+v", st)
	}

	if err := os.WriteFile(path, []byte("cherry\n"), 0600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	_ = os.Chtimes(path, future, future)
	if _, err := im.ImportFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	words, _ = store.ListWords(ctx, nil)
	if len(words) != 1 || words[0].Normalized != "cherry" {
		t.Errorf("changed file should replace its words: %+v", words)
	}
	src, err := store.GetSource(ctx, fileid.SourceID(path))
	if err != nil || src.Words != 1 {
		t.Errorf("source: %+v, %v", src, err)
	}
}

func TestImportPath_directory(t *testing.T) {
	dir := t.TempDir()
	im, store := testImporter(t, dir)
	ctx := context.Background()

	lex := filepath.Join(dir, "lexicon")
	if err := os.MkdirAll(filepath.Join(lex, "fr"), 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(lex, "en.txt"), []byte("happy\nglad\n"), 0600)
	_ = os.WriteFile(filepath.Join(lex, "fr", "mots.tsv"), []byte("heureux\t5\n"), 0600)
	_ = os.WriteFile(filepath.Join(lex, "notes.md"), []byte("ignored\n"), 0600)

	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "cheerful")
	f.SetCellValue("Sheet1", "B1", 4)
	if err := f.SaveAs(filepath.Join(lex, "extra.xlsx")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	st, err := im.ImportPath(ctx, lex)
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 3 || st.Words != 4 {
		t.Errorf("stats: %+v", st)
	}
	langs, _ := store.Languages(ctx)
	if langs["en"] != 3 || langs["fr"] != 1 {
		t.Errorf("languages: %v", langs)
	}

	if err := os.Remove(filepath.Join(lex, "en.txt")); err != nil {
		t.Fatal(err)
	}
	st, err = im.ImportPath(ctx, lex)
	if err != nil {
		t.Fatal(err)
	}
	if st.Removed != 1 || st.Skipped != 2 {
		t.Errorf("stats after removal: %+v", st)
	}
	n, _ := store.CountWords(ctx)
	if n != 2 {
		t.Errorf("expected 2 words after removing en.txt, got %d", n)
	}
}

func TestImportFile_errors(t *testing.T) {
	dir := t.TempDir()
	im, _ := testImporter(t, dir)
	ctx := context.Background()

	if _, err := im.ImportFile(ctx, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := im.ImportFile(ctx, dir); err == nil {
		t.Error("expected error for directory")
	}
}

func TestImporter_ImportAllAndApply(t *testing.T) {
	dir := t.TempDir()
	im, store := testImporter(t, dir)
	ctx := context.Background()

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "words.fr.txt")
	_ = os.WriteFile(a, []byte("apple\napply\n"), 0600)
	_ = os.WriteFile(b, []byte("pomme\n"), 0600)

	st, err := im.ImportAll(ctx, []string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 2 || st.Words != 3 {
		t.Errorf("stats: %+v", st)
	}
	if _, err := im.ImportAll(ctx, []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing source")
	}

	_ = os.WriteFile(a, []byte("application\n"), 0600)
	future := time.Now().Add(time.Minute)
	_ = os.Chtimes(a, future, future)
	_ = os.Remove(b)
	st, err = im.Apply(ctx, []string{a, filepath.Join(dir, "gone.txt")}, []string{b})
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 1 || st.Removed != 1 {
		t.Errorf("apply stats: %+v", st)
	}
	words, _ := store.ListWords(ctx, nil)
	if len(words) != 1 || words[0].Normalized != "application" {
		t.Errorf("words after apply: %+v", words)
	}
}
