package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"listimport/internal/listing"
	"listimport/internal/mapping"
	"listimport/internal/queue"
	"listimport/internal/state"
)

const sampleCSV = `name,tags,opened
Cafe X,"food,coffee",2024-12-01
Bar Y,drinks,2024-11-15
Diner Z,,2024-10-10
,orphan,2024-01-01
,,
`

type testRig struct {
	scheduler *queue.Scheduler
	directory *listing.Directory
	store     *state.Memory
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	directory := listing.NewDirectory()
	pipeline := &Pipeline{
		Engine: &mapping.Engine{Taxonomies: directory, Registry: directory},
		Upsert: &Upserter{Records: directory},
		Secret: []byte("test-secret"),
	}
	store := state.NewMemory()
	scheduler := queue.NewScheduler(store)
	if err := scheduler.Register(pipeline.Importer()); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &testRig{scheduler: scheduler, directory: directory, store: store}
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listings.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	return path
}

func sampleSettings(testMode bool) Settings {
	return Settings{
		ListingType: "restaurant",
		Category:    "cafes",
		AuthorID:    "7",
		BatchSize:   2,
		TestMode:    testMode,
		Mapping: mapping.ColumnMapping{
			{Column: "name", Field: "title"},
			{Column: "tags", Field: "listing_tags"},
			{Column: "opened", Field: "date"},
		},
	}
}

// drain ticks until the job slot empties and returns the percent observed
// after each tick.
func (r *testRig) drain(t *testing.T, ctx context.Context) []int {
	t.Helper()
	var percents []int
	for i := 0; i < 50; i++ {
		inProgress, err := r.scheduler.InProgress(ctx, DirectoryImporterID)
		if err != nil {
			t.Fatalf("in progress: %v", err)
		}
		if !inProgress {
			return percents
		}
		if err := r.scheduler.Tick(ctx, DirectoryImporterID); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		stats, err := r.scheduler.Progress(DirectoryImporterID).Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		still, err := r.scheduler.InProgress(ctx, DirectoryImporterID)
		if err != nil {
			t.Fatalf("in progress: %v", err)
		}
		percents = append(percents, queue.Percent(stats, still))
	}
	t.Fatalf("job never finished")
	return nil
}

func TestPipelineImportsDirectoryCSV(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	source := writeSource(t, sampleCSV)

	err := rig.scheduler.Submit(ctx, DirectoryImporterID, sampleSettings(false), map[string]any{
		"source": source,
		"format": FormatCSV,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	percents := rig.drain(t, ctx)

	stats, err := rig.scheduler.Progress(DirectoryImporterID).Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 || stats.Succeeded != 3 || stats.Skipped != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if rig.directory.Len() != 3 {
		t.Fatalf("expected 3 listings, got %d", rig.directory.Len())
	}

	rec, ok := rig.directory.Get(1)
	if !ok {
		t.Fatalf("first listing missing")
	}
	if rec.Title != "Cafe X" || rec.ListingType != "restaurant" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.PublishedAt != "2024-12-01 00:00:00" {
		t.Fatalf("expected canonical publish date, got %q", rec.PublishedAt)
	}
	if rec.Status != "publish" || rec.AuthorID != "7" || rec.Category != "cafes" {
		t.Fatalf("expected submit-time defaults applied, got %+v", rec)
	}
	terms := rec.Terms["listing_tag"]
	if len(terms) != 2 || terms[0].Name != "food" || terms[1].Name != "coffee" {
		t.Fatalf("unexpected tag terms %v", terms)
	}
	if terms[0].ID == 0 || terms[1].ID == 0 {
		t.Fatalf("expected tag terms materialized with ids, got %v", terms)
	}
	if rec.Fingerprint == "" {
		t.Fatalf("expected fingerprint recorded")
	}

	// Percent never decreases while the job runs.
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went backwards: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", percents)
	}

	// Scratch data and the uploaded file are gone after completion.
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected source file removed, stat err=%v", err)
	}
	if _, ok, _ := rig.store.Get(ctx, "job:directory:data:header"); ok {
		t.Fatalf("expected scratch header deleted")
	}
	if _, ok, _ := rig.store.Get(ctx, "job:directory:data:bound"); ok {
		t.Fatalf("expected bound mapping deleted")
	}
}

func TestPipelineReimportUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	for run := 0; run < 2; run++ {
		source := writeSource(t, sampleCSV)
		err := rig.scheduler.Submit(ctx, DirectoryImporterID, sampleSettings(false), map[string]any{
			"source": source,
			"format": FormatCSV,
		})
		if err != nil {
			t.Fatalf("submit run %d: %v", run, err)
		}
		rig.drain(t, ctx)
	}

	if rig.directory.Len() != 3 {
		t.Fatalf("re-import must not duplicate listings, got %d", rig.directory.Len())
	}
	stats, err := rig.scheduler.Progress(DirectoryImporterID).Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Succeeded != 3 {
		t.Fatalf("expected 3 succeeded on re-import, got %+v", stats)
	}

	logs, err := rig.scheduler.Progress(DirectoryImporterID).Logs(ctx, 0)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	var updated bool
	for _, entry := range logs {
		if strings.Contains(entry.Message, "updated existing listing") {
			updated = true
			break
		}
	}
	if !updated {
		t.Fatalf("expected update narration in log, got %v", logs)
	}
}

func TestPipelineTestModeWritesNothing(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	source := writeSource(t, sampleCSV)

	err := rig.scheduler.Submit(ctx, DirectoryImporterID, sampleSettings(true), map[string]any{
		"source": source,
		"format": FormatCSV,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rig.drain(t, ctx)

	if rig.directory.Len() != 0 {
		t.Fatalf("test mode must not persist listings, got %d", rig.directory.Len())
	}
	stats, err := rig.scheduler.Progress(DirectoryImporterID).Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Succeeded != 3 || stats.Skipped != 1 || stats.Failed != 1 {
		t.Fatalf("test mode still counts outcomes, got %+v", stats)
	}
}

func TestPipelineAbortStopsBetweenBatches(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	source := writeSource(t, sampleCSV)

	err := rig.scheduler.Submit(ctx, DirectoryImporterID, sampleSettings(false), map[string]any{
		"source": source,
		"format": FormatCSV,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := rig.scheduler.Tick(ctx, DirectoryImporterID); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := rig.scheduler.Abort(ctx, DirectoryImporterID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := rig.scheduler.Tick(ctx, DirectoryImporterID); err != nil {
		t.Fatalf("abort tick: %v", err)
	}

	inProgress, err := rig.scheduler.InProgress(ctx, DirectoryImporterID)
	if err != nil {
		t.Fatalf("in progress: %v", err)
	}
	if inProgress {
		t.Fatalf("aborted job still reports in progress")
	}
	if rig.directory.Len() != 0 {
		t.Fatalf("abort during parse must not import rows, got %d listings", rig.directory.Len())
	}

	// Abort releases the uploaded file and every scratch key.
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected source file removed on abort, stat err=%v", err)
	}
	for _, name := range []string{"header", "bound", "rows:0", "rows:1", "rows:2"} {
		if _, ok, _ := rig.store.Get(ctx, "job:directory:data:"+name); ok {
			t.Fatalf("expected scratch key %s purged on abort", name)
		}
	}
}

func TestPipelineStageFailureReleasesScratch(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	source := writeSource(t, sampleCSV)

	err := rig.scheduler.Submit(ctx, DirectoryImporterID, sampleSettings(false), map[string]any{
		"source": source,
		"format": FormatCSV,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := rig.scheduler.Tick(ctx, DirectoryImporterID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Losing the source mid-parse fails the next tick; the chunk already
	// stored must not linger in the state store.
	if err := os.Remove(source); err != nil {
		t.Fatalf("removing source: %v", err)
	}
	if err := rig.scheduler.Tick(ctx, DirectoryImporterID); err == nil {
		t.Fatalf("expected parse failure after source vanished")
	}
	if inProgress, _ := rig.scheduler.InProgress(ctx, DirectoryImporterID); inProgress {
		t.Fatalf("failed job must release the slot")
	}
	if _, ok, _ := rig.store.Get(ctx, "job:directory:data:rows:0"); ok {
		t.Fatalf("expected stored chunk purged after failure")
	}
	if _, ok, _ := rig.store.Get(ctx, "job:directory:data:header"); ok {
		t.Fatalf("expected header purged after failure")
	}
}
