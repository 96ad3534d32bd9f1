package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"listimport/internal/mapping"
	"listimport/internal/queue"
)

// DirectoryImporterID is the job slot the directory pipeline runs under.
const DirectoryImporterID = "directory"

// Stage names, executed strictly in this order.
const (
	StageParse  = "parse"
	StageImport = "import"
)

// How many raw values per column feed date-format detection.
const sampleSize = 10

// Pipeline wires the mapping engine and upsert engine into queue stage
// handlers.
type Pipeline struct {
	Engine *mapping.Engine
	Upsert *Upserter
	Secret []byte
}

// Importer declares the directory pipeline for scheduler registration.
func (p *Pipeline) Importer() queue.Importer {
	return queue.Importer{
		ID:     DirectoryImporterID,
		Stages: []string{StageParse, StageImport},
		Handlers: map[string]queue.HandlerFunc{
			StageParse:  p.parseStage,
			StageImport: p.importStage,
		},
		Cleanup: p.cleanup,
	}
}

// parseStage reads one batch of raw rows from the source file per tick and
// stores it as a numbered chunk. Offset counts data rows already consumed.
func (p *Pipeline) parseStage(ctx context.Context, job *queue.JobContext, task queue.Task) (*queue.Task, error) {
	settings, err := decodeSettings(job.Settings)
	if err != nil {
		return nil, err
	}
	source := payloadString(task.Payload, "source")
	if source == "" {
		return nil, fmt.Errorf("parse: no source file in task payload")
	}
	format := payloadString(task.Payload, "format")
	chunkSize := settings.batch()

	header, rows, err := readRows(source, format, settings.comma(), task.Offset, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	if task.Offset == 0 {
		raw, err := json.Marshal(header)
		if err != nil {
			return nil, err
		}
		if err := job.SetData(ctx, "header", raw); err != nil {
			return nil, err
		}
		job.Progress.Bind(ctx).Infof("parsing source file")
	}

	if len(rows) > 0 {
		raw, err := json.Marshal(rows)
		if err != nil {
			return nil, err
		}
		chunk := task.Offset / chunkSize
		if err := job.SetData(ctx, "rows:"+strconv.Itoa(chunk), raw); err != nil {
			return nil, err
		}
		// Keep the chunk count current so an early abort knows how much
		// scratch data to purge.
		task.Payload["chunks"] = chunk + 1
		if err := job.Progress.Add(ctx, queue.Stats{Total: len(rows)}); err != nil {
			return nil, err
		}
	}

	total := task.Offset + len(rows)
	if len(rows) == chunkSize {
		// A full chunk means more rows may remain.
		return &queue.Task{Payload: task.Payload, Offset: total}, nil
	}

	chunks := (total + chunkSize - 1) / chunkSize
	task.Payload["chunks"] = chunks
	job.Progress.Bind(ctx).Infof("parsed %d rows into %d batches", total, chunks)
	return nil, nil
}

// importStage maps and upserts one stored chunk per tick. Offset is the
// chunk cursor.
func (p *Pipeline) importStage(ctx context.Context, job *queue.JobContext, task queue.Task) (*queue.Task, error) {
	settings, err := decodeSettings(job.Settings)
	if err != nil {
		return nil, err
	}
	chunks := payloadInt(task.Payload, "chunks")
	if task.Offset >= chunks {
		return nil, p.cleanup(ctx, job, task)
	}

	var header []string
	if err := p.loadData(ctx, job, "header", &header); err != nil {
		return nil, err
	}
	var rows [][]string
	if err := p.loadData(ctx, job, "rows:"+strconv.Itoa(task.Offset), &rows); err != nil {
		return nil, err
	}
	bound, err := p.boundMapping(ctx, job, settings, header, rows, task.Offset == 0)
	if err != nil {
		return nil, err
	}

	log := job.Progress.Bind(ctx)
	var delta queue.Stats
	chunkSize := settings.batch()
	for i, values := range rows {
		rowNum := task.Offset*chunkSize + i + 1
		row := make(map[string]string, len(header))
		for c, column := range header {
			if c < len(values) {
				row[column] = values[c]
			}
		}

		result, err := p.Engine.MapRow(ctx, row, bound, settings.ListingType, settings.TestMode, log)
		switch {
		case errors.Is(err, mapping.ErrEmptyRow):
			delta.Skipped++
			continue
		case errors.Is(err, mapping.ErrNoTitle):
			delta.Failed++
			log.Errorf("row %d: no usable title, rejected", rowNum)
			continue
		case err != nil:
			delta.Failed++
			log.Errorf("row %d: %v", rowNum, err)
			continue
		}

		rec := result.Record
		rec.Fingerprint = Fingerprint(p.Secret, header, values)
		if rec.AuthorID == "" {
			rec.AuthorID = settings.AuthorID
		}
		if rec.Category == "" {
			rec.Category = settings.Category
		}
		if rec.Status == "" {
			rec.Status = "publish"
		}

		status, id, err := p.Upsert.Upsert(ctx, &rec, result.MediaURLs, settings.TestMode, log)
		switch status {
		case StatusSuccess:
			delta.Succeeded++
		case StatusUpdated:
			delta.Succeeded++
			log.Infof("row %d: updated existing listing %d", rowNum, id)
		case StatusSkipped:
			delta.Skipped++
		case StatusFailed:
			delta.Failed++
			log.Errorf("row %d: %v", rowNum, err)
		}
	}

	if err := job.Progress.Add(ctx, delta); err != nil {
		return nil, err
	}
	if err := job.DeleteData(ctx, "rows:"+strconv.Itoa(task.Offset)); err != nil {
		return nil, err
	}
	log.Successf("batch %d/%d done (%d rows)", task.Offset+1, chunks, len(rows))

	if task.Offset+1 < chunks {
		return &queue.Task{Payload: task.Payload, Offset: task.Offset + 1}, nil
	}
	return nil, p.cleanup(ctx, job, task)
}

// boundMapping resolves the column mapping once, on the first import tick,
// and persists it so later ticks (possibly in another process) reuse the
// same field kinds and detected date formats.
func (p *Pipeline) boundMapping(ctx context.Context, job *queue.JobContext, settings Settings, header []string, rows [][]string, first bool) ([]mapping.BoundColumn, error) {
	if !first {
		var bound []mapping.BoundColumn
		if err := p.loadData(ctx, job, "bound", &bound); err == nil && bound != nil {
			return bound, nil
		}
	}

	index := make(map[string]int, len(header))
	for i, column := range header {
		index[column] = i
	}
	samples := func(column string) []string {
		c, ok := index[column]
		if !ok {
			return nil
		}
		var out []string
		for _, values := range rows {
			if len(out) == sampleSize {
				break
			}
			if c < len(values) {
				out = append(out, values[c])
			}
		}
		return out
	}
	bound := mapping.Build(settings.Mapping, settings.ListingType, p.Engine.Registry, samples)
	raw, err := json.Marshal(bound)
	if err != nil {
		return nil, err
	}
	if err := job.SetData(ctx, "bound", raw); err != nil {
		return nil, err
	}
	return bound, nil
}

// cleanup drops scratch data and the uploaded source. It runs when the last
// chunk is processed and, via the scheduler's hook, when the job aborts or a
// stage fails.
func (p *Pipeline) cleanup(ctx context.Context, job *queue.JobContext, task queue.Task) error {
	for i := 0; i < payloadInt(task.Payload, "chunks"); i++ {
		_ = job.DeleteData(ctx, "rows:"+strconv.Itoa(i))
	}
	_ = job.DeleteData(ctx, "header")
	_ = job.DeleteData(ctx, "bound")
	if source := payloadString(task.Payload, "source"); source != "" {
		_ = os.Remove(source)
	}
	return nil
}

func (p *Pipeline) loadData(ctx context.Context, job *queue.JobContext, name string, out any) error {
	raw, ok, err := job.GetData(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("missing job data %q", name)
	}
	return json.Unmarshal(raw, out)
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// payloadInt tolerates the float64 that JSON round-tripping turns ints into.
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
