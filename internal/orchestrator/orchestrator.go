// Package orchestrator keeps the vault-wide task collection, tag set, and
// backlink index consistent with on-disk content: it re-parses every note on
// refresh, coalesces overlapping refresh requests, and integrates debounced
// autosave with the re-derivation chain.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nordmark/raido/internal/backlinks"
	"github.com/nordmark/raido/internal/checksum"
	"github.com/nordmark/raido/internal/models"
	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/tags"
	"github.com/nordmark/raido/internal/tasks"
	"github.com/nordmark/raido/internal/vault"
)

// NotifyFunc receives orchestrator events: "vault.refreshed", "tags.updated",
// "note.saved", "save.failed".
type NotifyFunc func(event string, data map[string]string)

// Snapshot is one consistent derivation cycle's output. Snapshots are
// replaced wholesale, never mutated, so holders of a previous snapshot keep
// reading consistent state.
type Snapshot struct {
	Generation uint64
	Tasks      []models.Task
	Tags       []string
	Backlinks  backlinks.Index
}

const maxConcurrentLoads = 16

// DefaultDebounce is the autosave quiet period measured from the last edit.
const DefaultDebounce = 2 * time.Second

type pendingSave struct {
	timer   *time.Timer
	content []byte
}

// Orchestrator owns the derived vault state and its refresh protocol.
type Orchestrator struct {
	provider vault.Provider
	mirror   *store.DB // optional SQLite query mirror
	logger   *slog.Logger
	notify   NotifyFunc
	debounce time.Duration

	// refreshing is the re-entrancy guard: overlapping refresh requests are
	// dropped at entry, not queued. generation identifies cycles so stale
	// results are never published over newer ones.
	refreshing atomic.Bool
	generation atomic.Uint64

	mu      sync.RWMutex
	notes   []*models.NoteMeta
	snap    Snapshot
	tagsSum string

	saveMu sync.Mutex
	saves  map[string]*pendingSave
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMirror sets the SQLite mirror that receives each cycle's snapshot.
func WithMirror(db *store.DB) Option {
	return func(o *Orchestrator) { o.mirror = db }
}

// WithNotify sets the event callback.
func WithNotify(fn NotifyFunc) Option {
	return func(o *Orchestrator) { o.notify = fn }
}

// WithDebounce overrides the autosave quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// New creates an Orchestrator over the given vault provider.
func New(provider vault.Provider, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		logger:   logger,
		debounce: DefaultDebounce,
		saves:    make(map[string]*pendingSave),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetNotes replaces the authoritative note tree. The tree is externally
// produced ground truth; the orchestrator traverses it but never mutates it.
// Callers follow up with Refresh.
func (o *Orchestrator) SetNotes(tree []*models.NoteMeta) {
	o.mu.Lock()
	o.notes = tree
	o.mu.Unlock()
}

// NoteTree returns the current note tree.
func (o *Orchestrator) NoteTree() []*models.NoteMeta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.notes
}

// Snapshot returns the most recent consistent derivation.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Tasks returns the current vault-wide task collection, in flatten order of
// the note tree.
func (o *Orchestrator) Tasks() []models.Task {
	return o.Snapshot().Tasks
}

// Tags returns the current vault-wide tag set, sorted.
func (o *Orchestrator) Tags() []string {
	return o.Snapshot().Tags
}

// Backlinks returns the notes linking to note under the current index.
func (o *Orchestrator) Backlinks(note *models.NoteMeta) []*models.NoteMeta {
	return backlinks.Get(note, o.Snapshot().Backlinks)
}

// FindNote locates a file node by vault-relative path in the current tree.
func (o *Orchestrator) FindNote(path string) *models.NoteMeta {
	for _, n := range backlinks.Flatten(o.NoteTree()) {
		if n.ID == path {
			return n
		}
	}
	return nil
}

// Rescan rebuilds the note tree from disk and runs a refresh. Used on vault
// open and by the file watcher when the note set changes.
func (o *Orchestrator) Rescan(ctx context.Context) error {
	tree, err := o.provider.ScanTree()
	if err != nil {
		return fmt.Errorf("orchestrator: rescan: %w", err)
	}
	o.SetNotes(tree)
	if _, err := o.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

// Refresh re-derives tasks, tags, and the backlink index from the current
// note tree. It returns (false, nil) when another refresh is already in
// flight: overlapping requests are dropped, not queued, and the caller may
// re-trigger later.
func (o *Orchestrator) Refresh(ctx context.Context) (bool, error) {
	if !o.refreshing.CompareAndSwap(false, true) {
		o.logger.Debug("orchestrator: refresh in flight, request dropped")
		return false, nil
	}
	defer o.refreshing.Store(false)

	gen := o.generation.Add(1)
	start := time.Now()
	files := backlinks.Flatten(o.NoteTree())

	// Load all contents concurrently; aggregate only after the whole batch
	// settles so partial results are never published.
	contents := make([]string, len(files))
	loaded := make([]bool, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, n := range files {
		g.Go(func() error {
			data, err := o.provider.Read(n.ID)
			if err != nil {
				o.logger.Warn("orchestrator: read failed",
					slog.String("path", n.ID),
					slog.String("error", err.Error()))
				return nil
			}
			contents[i] = string(data)
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return true, err
	}

	var allTasks []models.Task
	tagSet := make(map[string]struct{})
	for i, n := range files {
		if !loaded[i] {
			continue // failed note contributes zero tasks/tags this cycle
		}
		noteTasks := tasks.Parse(contents[i])
		for j := range noteTasks {
			noteTasks[j].NotePath = n.ID
			if noteTasks[j].Project == "" {
				noteTasks[j].Project = n.Title
			}
		}
		allTasks = append(allTasks, noteTasks...)
		for _, tag := range tags.Extract(contents[i]) {
			tagSet[tag] = struct{}{}
		}
	}

	sortedTags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		sortedTags = append(sortedTags, tag)
	}
	sort.Strings(sortedTags)

	// Serve the backlink build from the already-loaded batch; notes that
	// failed to load stay loadable-as-targets but yield no outgoing links.
	byPath := make(map[string]int, len(files))
	for i, n := range files {
		byPath[n.ID] = i
	}
	idx, err := backlinks.Build(ctx, o.NoteTree(), func(_ context.Context, path string) (string, error) {
		i, ok := byPath[path]
		if !ok || !loaded[i] {
			return "", fmt.Errorf("orchestrator: content unavailable: %s", path)
		}
		return contents[i], nil
	}, o.logger)
	if err != nil {
		return true, fmt.Errorf("orchestrator: backlink build: %w", err)
	}

	o.mu.Lock()
	tagsChanged := false
	if sum := checksum.SumStrings(sortedTags); sum != o.tagsSum {
		o.tagsSum = sum
		tagsChanged = true
	} else {
		// Unchanged set: keep the previous slice to avoid gratuitous
		// downstream updates.
		sortedTags = o.snap.Tags
	}
	o.snap = Snapshot{
		Generation: gen,
		Tasks:      allTasks,
		Tags:       sortedTags,
		Backlinks:  idx,
	}
	o.mu.Unlock()

	if o.mirror != nil {
		if err := o.mirror.ReplaceSnapshot(allTasks, sortedTags, idx); err != nil {
			o.logger.Warn("orchestrator: mirror update failed", slog.String("error", err.Error()))
		}
	}

	o.logger.Debug("orchestrator: refreshed",
		slog.Int("notes", len(files)),
		slog.Int("tasks", len(allTasks)),
		slog.Int("tags", len(sortedTags)),
		slog.Duration("took", time.Since(start)))

	o.emit("vault.refreshed", map[string]string{})
	if tagsChanged {
		o.emit("tags.updated", map[string]string{})
	}
	return true, nil
}

// ScheduleSave queues a debounced write for path. Each new call within the
// quiet period replaces the pending content and restarts the timer. When the
// timer fires the write is awaited and the refresh chain runs immediately;
// there is no fixed settle delay between write and re-index.
func (o *Orchestrator) ScheduleSave(path string, content []byte) {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()
	if p, ok := o.saves[path]; ok {
		p.content = content
		p.timer.Reset(o.debounce)
		return
	}
	p := &pendingSave{content: content}
	p.timer = time.AfterFunc(o.debounce, func() { o.flushSave(path) })
	o.saves[path] = p
}

// SaveNow cancels any pending debounced save for path and writes immediately,
// then refreshes.
func (o *Orchestrator) SaveNow(ctx context.Context, path string, content []byte) error {
	o.saveMu.Lock()
	if p, ok := o.saves[path]; ok {
		p.timer.Stop()
		delete(o.saves, path)
	}
	o.saveMu.Unlock()
	return o.writeAndRefresh(ctx, path, content)
}

// flushSave runs when a debounce timer fires.
func (o *Orchestrator) flushSave(path string) {
	o.saveMu.Lock()
	p, ok := o.saves[path]
	if !ok {
		o.saveMu.Unlock()
		return
	}
	delete(o.saves, path)
	content := p.content
	o.saveMu.Unlock()

	if err := o.writeAndRefresh(context.Background(), path, content); err != nil {
		// Already logged; the next edit's debounce cycle is the retry path.
		return
	}
}

// writeAndRefresh performs the explicit save chain: write → index rebuild →
// task refresh. A failed write is surfaced as a save.failed event and is not
// retried automatically.
func (o *Orchestrator) writeAndRefresh(ctx context.Context, path string, content []byte) error {
	if err := o.provider.Write(path, content); err != nil {
		o.logger.Error("orchestrator: save failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		o.emit("save.failed", map[string]string{"path": path, "error": err.Error()})
		return fmt.Errorf("orchestrator: save %s: %w", path, err)
	}
	o.emit("note.saved", map[string]string{"path": path})

	if _, err := o.Refresh(ctx); err != nil {
		o.logger.Warn("orchestrator: post-save refresh failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return nil
}

// ToggleTask re-reads the note, applies a targeted status edit to the task's
// originating line, writes the result immediately, and refreshes. Stale task
// references fail rather than corrupting unrelated lines.
func (o *Orchestrator) ToggleTask(ctx context.Context, t models.Task, status models.TaskStatus) error {
	data, err := o.provider.Read(t.NotePath)
	if err != nil {
		return fmt.Errorf("orchestrator: toggle task: %w", err)
	}
	updated, err := tasks.UpdateStatus(string(data), t, status)
	if err != nil {
		return err
	}
	return o.SaveNow(ctx, t.NotePath, []byte(updated))
}

// PendingSaves reports how many debounced writes are queued.
func (o *Orchestrator) PendingSaves() int {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()
	return len(o.saves)
}

func (o *Orchestrator) emit(event string, data map[string]string) {
	if o.notify != nil {
		o.notify(event, data)
	}
}
