package turtlesoup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedCorpus(t *testing.T) {
	l := NewLoader("")
	if got := l.Count(); got != 8 {
		t.Fatalf("count = %d, want 8", got)
	}

	p, ok := l.ByID(1)
	if !ok {
		t.Fatal("puzzle 1 missing")
	}
	if p.Title != "바다거북 수프" || p.Difficulty != 3 {
		t.Errorf("puzzle 1 = %+v", p)
	}

	counts := l.CountByDifficulty()
	want := map[int]int{1: 2, 2: 2, 3: 2, 4: 1, 5: 1}
	for d, n := range want {
		if counts[d] != n {
			t.Errorf("difficulty %d count = %d, want %d", d, counts[d], n)
		}
	}
}

func TestRandomByDifficulty(t *testing.T) {
	l := NewLoader("")

	p, err := l.RandomByDifficulty(4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Difficulty != 4 {
		t.Errorf("difficulty = %d", p.Difficulty)
	}

	if _, err := l.RandomByDifficulty(9); err == nil {
		t.Error("difficulty with no puzzles must error")
	}
}

func TestRandomFromEmptyCorpus(t *testing.T) {
	l := NewLoader(t.TempDir())
	if _, err := l.Random(); err == nil {
		t.Error("empty corpus must error")
	}
}

func TestDirOverride(t *testing.T) {
	dir := t.TempDir()
	data := `[{"id": 100, "title": "custom", "question": "q", "answer": "a", "difficulty": 2}]`
	if err := os.WriteFile(filepath.Join(dir, "custom.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	if got := l.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	if _, ok := l.ByID(100); !ok {
		t.Error("custom puzzle missing")
	}
}

func TestReloadPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)
	if got := l.Count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}

	data := `[{"id": 1, "title": "t", "question": "q", "answer": "a", "difficulty": 1}]`
	if err := os.WriteFile(filepath.Join(dir, "new.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := l.Reload(); got != 1 {
		t.Errorf("reload count = %d, want 1", got)
	}
}

func TestBadJSONFileSkipped(t *testing.T) {
	dir := t.TempDir()
	good := `[{"id": 1, "title": "t", "question": "q", "answer": "a", "difficulty": 1}]`
	if err := os.WriteFile(filepath.Join(dir, "a_good.json"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b_bad.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	if got := l.Count(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestExamplesPreferDifficulty(t *testing.T) {
	l := NewLoader("")

	examples := l.Examples(3, 3)
	if len(examples) != 2 {
		t.Fatalf("examples = %d, want the 2 difficulty-3 puzzles", len(examples))
	}
	for _, p := range examples {
		if p.Difficulty != 3 {
			t.Errorf("example difficulty = %d", p.Difficulty)
		}
	}

	// No bucket match falls back to the whole corpus, capped at max.
	examples = l.Examples(9, 3)
	if len(examples) != 3 {
		t.Errorf("fallback examples = %d, want 3", len(examples))
	}
}
