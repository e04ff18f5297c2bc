package indexing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/cortex-graph/internal/metrics"
	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// BatchReport summarizes a batch indexing pass.
type BatchReport struct {
	Indexed int                    `json:"indexed"`
	Failed  []models.EntityFailure `json:"failed,omitempty"`
}

// IndexEntities indexes entities in groups of Options.BatchSize. Within a
// group up to Options.Workers entities are embedded concurrently; results are
// collected by position so output order never depends on scheduling. A failing
// entity is recorded and skipped without affecting the others.
func (m *Manager) IndexEntities(ctx context.Context, entities []models.Entity) BatchReport {
	report := BatchReport{}
	total := len(entities)
	batches := (total + m.opts.BatchSize - 1) / m.opts.BatchSize

	for b := 0; b < batches; b++ {
		if ctx.Err() != nil {
			for _, e := range entities[b*m.opts.BatchSize:] {
				report.Failed = append(report.Failed, failure(e, ctx.Err()))
			}
			break
		}
		start := b * m.opts.BatchSize
		end := min(start+m.opts.BatchSize, total)
		batch := entities[start:end]

		errs := make([]error, len(batch))
		var g errgroup.Group
		g.SetLimit(m.opts.Workers)
		for i, e := range batch {
			g.Go(func() error {
				errs[i] = m.IndexEntity(ctx, e)
				return nil
			})
		}
		_ = g.Wait()

		indexed := 0
		for i, err := range errs {
			if err != nil {
				m.logger.Warn("indexing entity failed", "name", batch[i].Name, "type", batch[i].Type, "error", err)
				report.Failed = append(report.Failed, failure(batch[i], err))
				metrics.BackfillIndexed.WithLabelValues("failed").Inc()
				continue
			}
			indexed++
			metrics.BackfillIndexed.WithLabelValues("indexed").Inc()
		}
		report.Indexed += indexed
		m.logger.Info("indexed batch",
			"batch", b+1, "batches", batches,
			"indexed", indexed, "failed", len(batch)-indexed,
			"progress", end, "total", total)
	}
	return report
}

func failure(e models.Entity, err error) models.EntityFailure {
	return models.EntityFailure{Name: e.Name, Type: e.Type, Error: err.Error()}
}
