package turtlesoup

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

//go:embed puzzles
var embeddedPuzzles embed.FS

// Puzzle is one preset loaded from the JSON corpus.
type Puzzle struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty int    `json:"difficulty"`
}

// Loader serves preset puzzles from JSON files, loaded lazily. With no
// directory configured the embedded corpus is used.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	puzzles []Puzzle
	loaded  bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a Loader. An empty dir selects the embedded puzzles.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) ensureLoaded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.loadAllLocked()
		l.loaded = true
	}
}

func (l *Loader) loadAllLocked() {
	l.puzzles = nil

	var (
		fsys fs.FS
		root string
	)
	if l.dir == "" {
		fsys, root = embeddedPuzzles, "puzzles"
	} else {
		fsys, root = os.DirFS(l.dir), "."
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		l.logger.Warn("puzzle_dir_unreadable", "dir", l.dir, "err", err)
		return
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		l.logger.Warn("puzzle_files_not_found", "dir", l.dir)
	}

	for _, name := range files {
		data, err := fs.ReadFile(fsys, filepath.Join(root, name))
		if err != nil {
			l.logger.Warn("puzzle_file_read_failed", "file", name, "err", err)
			continue
		}
		var batch []Puzzle
		if err := json.Unmarshal(data, &batch); err != nil {
			l.logger.Warn("puzzle_file_load_failed", "file", name, "err", err)
			continue
		}
		l.puzzles = append(l.puzzles, batch...)
		l.logger.Info("puzzle_file_loaded", "file", name, "count", len(batch))
	}
	l.logger.Info("total_puzzles_loaded", "count", len(l.puzzles))
}

// Reload re-reads the corpus and returns the new puzzle count.
func (l *Loader) Reload() int {
	l.mu.Lock()
	l.loadAllLocked()
	l.loaded = true
	count := len(l.puzzles)
	l.mu.Unlock()
	return count
}

func (l *Loader) snapshot() []Puzzle {
	l.ensureLoaded()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Puzzle, len(l.puzzles))
	copy(out, l.puzzles)
	return out
}

// Random returns any loaded puzzle.
func (l *Loader) Random() (Puzzle, error) {
	puzzles := l.snapshot()
	if len(puzzles) == 0 {
		return Puzzle{}, fmt.Errorf("no puzzles loaded")
	}
	return puzzles[rand.Intn(len(puzzles))], nil
}

// RandomByDifficulty returns a random puzzle at exactly the given
// difficulty.
func (l *Loader) RandomByDifficulty(difficulty int) (Puzzle, error) {
	var filtered []Puzzle
	for _, p := range l.snapshot() {
		if p.Difficulty == difficulty {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return Puzzle{}, fmt.Errorf("no puzzles found for difficulty %d", difficulty)
	}
	return filtered[rand.Intn(len(filtered))], nil
}

// ByID looks a puzzle up by id.
func (l *Loader) ByID(id int) (Puzzle, bool) {
	for _, p := range l.snapshot() {
		if p.ID == id {
			return p, true
		}
	}
	return Puzzle{}, false
}

// All returns every loaded puzzle.
func (l *Loader) All() []Puzzle {
	return l.snapshot()
}

// Count returns the total puzzle count.
func (l *Loader) Count() int {
	return len(l.snapshot())
}

// CountByDifficulty buckets the corpus per difficulty level.
func (l *Loader) CountByDifficulty() map[int]int {
	counts := make(map[int]int)
	for _, p := range l.snapshot() {
		counts[p.Difficulty]++
	}
	return counts
}

// Examples picks up to max puzzles for few-shot prompting, preferring the
// requested difficulty when any exist there.
func (l *Loader) Examples(difficulty, max int) []Puzzle {
	candidates := l.snapshot()
	if difficulty > 0 {
		var filtered []Puzzle
		for _, p := range candidates {
			if p.Difficulty == difficulty {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	if len(candidates) <= max {
		return candidates
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:max]
}
