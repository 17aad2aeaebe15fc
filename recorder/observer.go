package recorder

import (
	"context"
	"log"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/training"
)

// Observer records orchestrator events for one run. Recording failures are
// logged and never interrupt training.
type Observer struct {
	training.NopObserver

	ctx    context.Context
	rec    *Recorder
	run    *Run
	logger *log.Logger
	errs   int
}

// NewObserver returns an observer writing to run. A nil logger uses the
// standard logger.
func NewObserver(ctx context.Context, rec *Recorder, run *Run, logger *log.Logger) *Observer {
	if logger == nil {
		logger = log.Default()
	}
	return &Observer{ctx: ctx, rec: rec, run: run, logger: logger}
}

// Errors is the number of events that could not be recorded.
func (o *Observer) Errors() int { return o.errs }

func (o *Observer) report(err error) {
	if err != nil {
		o.errs++
		o.logger.Printf("recorder: %v", err)
	}
}

func (o *Observer) StateChanged(from, to training.State) {
	if to == training.Done {
		o.report(o.rec.FinishRun(o.ctx, o.run.ID, StatusDone, nil))
	}
}

func (o *Observer) CheckpointSaved(stage checkpoints.Stage, kind checkpoints.Kind, epoch int, path string) {
	o.report(o.rec.RecordCheckpoint(o.ctx, CheckpointRow{
		RunID: o.run.ID,
		Stage: string(stage),
		Kind:  string(kind),
		Epoch: epoch,
		Path:  path,
	}))
}

func (o *Observer) ScoresReported(stage checkpoints.Stage, train, test training.Score) {
	for _, s := range []struct {
		split string
		score training.Score
	}{{"train", train}, {"test", test}} {
		o.report(o.rec.RecordScore(o.ctx, o.run.ID, string(stage), s.split,
			s.score.Loss, s.score.RMSE, s.score.RealRMSE, s.score.Samples))
	}
}

// Fail marks the run failed with err.
func (o *Observer) Fail(err error) {
	o.report(o.rec.FinishRun(o.ctx, o.run.ID, StatusFailed, err))
}
