package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotoba/internal/models"
)

func openTest(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "sub", "lexicon.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Words(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	words := []models.Word{
		{Text: "Apple", Normalized: "apple", Language: "en", Frequency: 5, Source: "s1"},
		{Text: "ad hoc", Normalized: "ad hoc", Language: "en", Frequency: 1, Source: "s1"},
		{Text: "pomme", Normalized: "pomme", Language: "fr", Frequency: 3, Source: "s2"},
		{Text: "", Normalized: "", Language: "en"},
	}
	if err := store.UpsertWords(ctx, words); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountWords(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountWords: %v, %d", err, n)
	}

	en, err := store.ListWords(ctx, []string{"en"})
	if err != nil {
		t.Fatal(err)
	}
	if len(en) != 2 || en[0].Normalized != "ad hoc" || en[1].Normalized != "apple" {
		t.Errorf("ListWords(en): %+v", en)
	}

	all, _ := store.ListWords(ctx, nil)
	if len(all) != 3 {
		t.Errorf("ListWords(nil): got %d words, want 3", len(all))
	}

	langs, err := store.Languages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if langs["en"] != 2 || langs["fr"] != 1 {
		t.Errorf("Languages: %v", langs)
	}
}

func TestSQLiteStorage_UpsertKeepsMostFrequent(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	_ = store.UpsertWords(ctx, []models.Word{{Text: "APPLE", Normalized: "apple", Language: "en", Frequency: 2, Source: "a"}})
	_ = store.UpsertWords(ctx, []models.Word{{Text: "Apple", Normalized: "apple", Language: "en", Frequency: 9, Source: "b"}})
	_ = store.UpsertWords(ctx, []models.Word{{Text: "apple", Normalized: "apple", Language: "en", Frequency: 1, Source: "c"}})

	got, _ := store.ListWords(ctx, []string{"en"})
	if len(got) != 1 {
		t.Fatalf("expected 1 word, got %d", len(got))
	}
	if got[0].Text != "Apple" || got[0].Frequency != 9 || got[0].Source != "b" {
		t.Errorf("got %+v", got[0])
	}
}

func TestSQLiteStorage_DeleteWordsBySource(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	_ = store.UpsertWords(ctx, []models.Word{
		{Text: "a", Normalized: "a", Language: "en", Source: "s1"},
		{Text: "b", Normalized: "b", Language: "en", Source: "s1"},
		{Text: "c", Normalized: "c", Language: "en", Source: "s2"},
	})
	n, err := store.DeleteWordsBySource(ctx, "s1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteWordsBySource: %v, %d", err, n)
	}
	left, _ := store.CountWords(ctx)
	if left != 1 {
		t.Errorf("expected 1 word left, got %d", left)
	}
}

func TestSQLiteStorage_Sources(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	src := &models.Source{ID: "s1", Path: "/data/en.txt", Language: "en", ModTime: 100, Size: 42, Words: 7}
	if err := store.UpsertSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	if src.IndexedAt.IsZero() {
		t.Error("IndexedAt should be set")
	}

	got, err := store.GetSource(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "/data/en.txt" || got.ModTime != 100 || got.Words != 7 {
		t.Errorf("got %+v", got)
	}

	src.ModTime = 200
	src.Words = 9
	if err := store.UpsertSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	list, err := store.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ModTime != 200 || list[0].Words != 9 {
		t.Errorf("ListSources: %+v", list)
	}

	if err := store.DeleteSource(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSource(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
