package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/x12ctx/internal/errh"
	"github.com/dgallion1/x12ctx/internal/reader"
	"github.com/dgallion1/x12ctx/internal/x12"
	"github.com/dgallion1/x12ctx/internal/x12err"
)

// Worker parses one interchange job at a time.
type Worker struct {
	readerCfg reader.Config
	log       *slog.Logger
}

func NewWorker(readerCfg reader.Config, log *slog.Logger) *Worker {
	return &Worker{readerCfg: readerCfg, log: log}
}

// Process reads the job's interchange and stores every yielded tree along
// with the envelope diagnostics.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename, "loop_id", job.LoopID)
	defer job.releaseFile()

	job.SetStatus(StatusParsing, "opening")
	cfg := w.readerCfg
	cfg.Log = log
	collector := errh.NewCollector(log)
	src := x12.NewReader(bytes.NewReader(job.FileData()))

	rd, err := reader.Open(cfg, collector, src)
	if err != nil {
		log.Error("open reader failed", "error", err)
		job.AddError(fmt.Sprintf("open: %s", err))
		job.SetStatus(StatusFailed, "opening")
		return
	}

	job.SetStatus(StatusParsing, "parsing")
	var fatal error
	for tree, err := range rd.Iterate(job.LoopID).All() {
		if err != nil {
			fatal = err
			break
		}
		if ctx.Err() != nil {
			fatal = fmt.Errorf("cancelled: %w", ctx.Err())
			break
		}
		job.AddTree(tree)
	}
	job.SetDiagnostics(collector)

	snap := job.Snapshot()
	if fatal != nil {
		log.Error("parse stopped", "error", fatal, "trees", snap.Progress.Trees)
		job.AddError(fmt.Sprintf("parse: %s", fatal))
		// Errors that are not about the interchange itself stop the job
		// before parsing could finish.
		phase := "parsing"
		if !x12err.IsFatal(fatal) {
			phase = "interrupted"
		}
		if snap.Progress.Trees > 0 {
			job.SetStatus(StatusPartial, phase)
		} else {
			job.SetStatus(StatusFailed, phase)
		}
		return
	}

	log.Info("parse complete",
		"map", rd.MapFile(),
		"trees", snap.Progress.Trees,
		"segments", snap.Progress.Segments,
		"diagnostics", snap.Progress.Diagnostics,
	)
	job.SetStatus(StatusCompleted, "done")
}
