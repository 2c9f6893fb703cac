// Package ingest drives the sequential fetch, infer, migrate and insert
// pipeline over a plan of query batches.
package ingest

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/poi-ingest/internal/model"
	"github.com/sells-group/poi-ingest/internal/schema"
	"github.com/sells-group/poi-ingest/internal/store"
)

// Source builds, fetches and decodes the query of one batch.
type Source interface {
	BuildQuery(place, key, value string) string
	Fetch(ctx context.Context, query string) ([]byte, error)
	Decode(body []byte, ann model.Annotations) (model.Batch, error)
}

// Engine runs plans against a Source and a Store.
type Engine struct {
	source Source
	store  store.Store
}

// NewEngine creates a new ingestion engine.
func NewEngine(src Source, st store.Store) *Engine {
	return &Engine{source: src, store: st}
}

// session is the state of one run. It owns the table column list; nothing
// else mutates it.
type session struct {
	runID   string
	store   store.Store
	columns schema.TableColumns
	log     *zap.Logger
}

// Run resets the table and processes every batch of the plan in order.
// Fetch and parse failures skip their batch. Migration failures and
// failures to prepare an insert end the run with a fatal *BatchError.
// The returned report is never nil.
func (e *Engine) Run(ctx context.Context, plan Plan) (*Report, error) {
	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "ingest.engine"),
		zap.String("run_id", runID),
	)
	report := &Report{RunID: runID}

	specs := plan.Batches()
	if len(specs) == 0 {
		return report, eris.New("ingest: plan has no batches")
	}

	if err := e.store.Reset(ctx); err != nil {
		return report, eris.Wrapf(err, "ingest: reset table %s", e.store.Table())
	}
	log.Info("table reset", zap.String("table", e.store.Table()), zap.Int("batches", len(specs)))

	sess := &session{runID: runID, store: e.store, log: log}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			report.Columns = sess.columns.Names()
			return report, eris.Wrap(err, "ingest: run cancelled")
		}

		res, err := e.runBatch(ctx, sess, spec)
		report.Batches = append(report.Batches, res)
		if err == nil {
			continue
		}
		if IsFatal(err) {
			log.Error("run aborted", zap.Error(err))
			report.Columns = sess.columns.Names()
			return report, err
		}
		if ctx.Err() != nil {
			report.Columns = sess.columns.Names()
			return report, eris.Wrap(err, "ingest: run cancelled")
		}
		log.Warn("batch skipped",
			zap.String("country", spec.Place),
			zap.String("filter", spec.Filter.String()),
			zap.String("query", res.Query),
			zap.Error(err),
		)
	}

	report.Columns = sess.columns.Names()
	log.Info("run complete",
		zap.Int("done", report.Done()),
		zap.Int("skipped", report.Skipped()),
		zap.Int("rows_inserted", report.RowsInserted()),
		zap.Int("rows_failed", report.RowsFailed()),
		zap.Int("columns", len(report.Columns)),
	)
	return report, nil
}

func (e *Engine) runBatch(ctx context.Context, sess *session, spec BatchSpec) (BatchResult, error) {
	query := e.source.BuildQuery(spec.Place, spec.Filter.Key, spec.Filter.Value)
	res := BatchResult{Spec: spec, Query: query, Status: StatusSkipped}
	log := sess.log.With(
		zap.String("country", spec.Place),
		zap.String("filter", spec.Filter.String()),
	)

	fail := func(stage Stage, kind Kind, fatal bool, err error) (BatchResult, error) {
		res.Err = &BatchError{Stage: stage, Kind: kind, Spec: spec, Query: query, Fatal: fatal, Err: err}
		return res, res.Err
	}

	log.Info("batch start")

	body, err := e.source.Fetch(ctx, query)
	if err != nil {
		return fail(StageFetch, TransportError, false, err)
	}

	batch, err := e.source.Decode(body, spec.Annotations())
	if err != nil {
		return fail(StageParse, ParseError, false, err)
	}

	inferred := schema.Infer(batch)

	if sess.columns.Len() == 0 {
		if err := sess.store.CreateTable(ctx, inferred.Columns()); err != nil {
			return fail(StageCreate, MigrationError, true, err)
		}
		created, err := sess.store.Columns(ctx)
		if err != nil {
			return fail(StageCreate, MigrationError, true, err)
		}
		if want := inferred.Names(); !slices.Equal(created, want) {
			return fail(StageCreate, MigrationError, true,
				eris.Errorf("table %s has columns %v, expected %v", sess.store.Table(), created, want))
		}
		sess.columns = schema.NewTableColumns(created...)
		res.ColumnsAdded = sess.columns.Len()
	} else {
		ops, next := schema.Reconcile(sess.columns, schema.Missing(inferred, sess.columns))
		if len(ops) > 0 {
			if err := sess.store.AddColumns(ctx, ops); err != nil {
				return fail(StageMigrate, MigrationError, true, err)
			}
		}
		sess.columns = next
		res.ColumnsAdded = len(ops)
	}
	log.Info("columns added", zap.Int("added", res.ColumnsAdded), zap.Int("total", sess.columns.Len()))

	ins, err := sess.store.PrepareInsert(ctx, sess.columns.Names())
	if err != nil {
		return fail(StageInsert, InsertError, true, err)
	}
	defer func() {
		if err := ins.Close(); err != nil {
			log.Warn("finalize insert failed", zap.Error(err))
		}
	}()

	insert := func(row schema.Row, index int) {
		if err := ins.Insert(ctx, row); err != nil {
			log.Warn("row insert failed", zap.Int("record", index), zap.Error(err))
			res.RowsFailed++
			return
		}
		res.RowsInserted++
	}

	for i, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			return fail(StageInsert, InsertError, false, eris.Wrapf(err, "interrupted after %d of %d records", i, len(batch.Records)))
		}
		insert(schema.MapRecord(rec, inferred, sess.columns, batch.Annotations), i)
	}
	if err := ctx.Err(); err != nil {
		return fail(StageInsert, InsertError, false, eris.Wrap(err, "interrupted before aggregate row"))
	}

	agg, err := schema.MapAggregate(batch.Annotations, batch.Geography, sess.columns)
	if err != nil {
		log.Warn("aggregate row dropped", zap.Error(err))
		res.RowsFailed++
	} else {
		insert(agg, -1)
	}

	res.Status = StatusDone
	log.Info("batch done",
		zap.Int("records", len(batch.Records)),
		zap.Int("rows_inserted", res.RowsInserted),
		zap.Int("rows_failed", res.RowsFailed),
	)
	return res, nil
}
