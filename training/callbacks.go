package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-stflow/checkpoints"
)

// Callback is invoked by Fit after every epoch with that epoch's logs.
// Returning stop=true ends training after the current epoch.
type Callback interface {
	OnEpochEnd(epoch int, logs map[string]float64) (stop bool, err error)
}

// EarlyStopping stops training when the monitored metric has not improved
// for Patience consecutive epochs. Lower is better.
type EarlyStopping struct {
	Monitor  string
	Patience int

	best        float64
	wait        int
	stoppedAt   int
	initialized bool
}

func NewEarlyStopping(monitor string, patience int) *EarlyStopping {
	return &EarlyStopping{Monitor: monitor, Patience: patience, stoppedAt: -1}
}

func (es *EarlyStopping) OnEpochEnd(epoch int, logs map[string]float64) (bool, error) {
	if !es.initialized {
		es.best = math.Inf(1)
		es.initialized = true
	}
	current, ok := logs[es.Monitor]
	if !ok {
		return false, fmt.Errorf("early stopping requires %s in epoch logs", es.Monitor)
	}

	if current < es.best {
		es.best = current
		es.wait = 0
		return false, nil
	}
	es.wait++
	if es.wait >= es.Patience {
		es.stoppedAt = epoch
		return true, nil
	}
	return false, nil
}

// StoppedEpoch is the epoch at which training was stopped, or -1.
func (es *EarlyStopping) StoppedEpoch() int { return es.stoppedAt }

// CheckpointManager writes a best-so-far checkpoint whenever the monitored
// metric improves on every value seen before it. Lower is better; NaN never
// improves.
type CheckpointManager struct {
	store     *checkpoints.Store
	predictor Predictor
	key       string
	stage     checkpoints.Stage
	monitor   string
	best      float64
	onSave    func(epoch int, path string)
}

// NewCheckpointManager creates a manager for one stage of one run
func NewCheckpointManager(store *checkpoints.Store, predictor Predictor, key string, stage checkpoints.Stage, monitor string) *CheckpointManager {
	return &CheckpointManager{
		store:     store,
		predictor: predictor,
		key:       key,
		stage:     stage,
		monitor:   monitor,
		best:      math.Inf(1),
	}
}

// Best is the best monitored value seen so far (+Inf before the first save).
func (cm *CheckpointManager) Best() float64 { return cm.best }

func (cm *CheckpointManager) OnEpochEnd(epoch int, logs map[string]float64) (bool, error) {
	current, ok := logs[cm.monitor]
	if !ok {
		return false, fmt.Errorf("checkpointing requires %s in epoch logs", cm.monitor)
	}
	_, err := cm.SaveBestCheckpoint(epoch, current)
	return false, err
}

// SaveBestCheckpoint saves a checkpoint if value is better than the previous best
func (cm *CheckpointManager) SaveBestCheckpoint(epoch int, value float64) (bool, error) {
	if !(value < cm.best) {
		return false, nil
	}
	cm.best = value

	checkpoint, err := cm.createCheckpoint(epoch, fmt.Sprintf("Best checkpoint - %s: %.6f", cm.monitor, value))
	if err != nil {
		return false, fmt.Errorf("failed to create best checkpoint: %w", err)
	}
	if err := cm.store.Save(cm.key, cm.stage, checkpoints.KindBest, checkpoint); err != nil {
		return false, fmt.Errorf("failed to save best checkpoint: %w", err)
	}
	if cm.onSave != nil {
		cm.onSave(epoch, cm.store.Path(cm.key, cm.stage, checkpoints.KindBest))
	}
	return true, nil
}

// SaveFinalCheckpoint writes the end-of-stage weights.
func (cm *CheckpointManager) SaveFinalCheckpoint(epoch int) error {
	checkpoint, err := cm.createCheckpoint(epoch, "Final checkpoint")
	if err != nil {
		return fmt.Errorf("failed to create final checkpoint: %w", err)
	}
	if err := cm.store.Save(cm.key, cm.stage, checkpoints.KindFinal, checkpoint); err != nil {
		return fmt.Errorf("failed to save final checkpoint: %w", err)
	}
	return nil
}

// LoadBestCheckpoint restores the best weights of this stage into the predictor
func (cm *CheckpointManager) LoadBestCheckpoint() error {
	checkpoint, err := cm.store.Load(cm.key, cm.stage, checkpoints.KindBest)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cm.predictor.Restore(checkpoint); err != nil {
		return fmt.Errorf("failed to restore model state: %w", err)
	}
	return nil
}

func (cm *CheckpointManager) createCheckpoint(epoch int, description string) (*checkpoints.Checkpoint, error) {
	checkpoint, err := cm.predictor.Checkpoint()
	if err != nil {
		return nil, err
	}
	checkpoint.TrainingState.Stage = string(cm.stage)
	checkpoint.TrainingState.Epoch = epoch
	checkpoint.TrainingState.Monitor = cm.monitor
	checkpoint.TrainingState.BestMetric = cm.best
	checkpoint.Metadata.Description = description
	checkpoint.Metadata.Tags = append(checkpoint.Metadata.Tags, cm.key, fmt.Sprintf("epoch_%d", epoch))
	return checkpoint, nil
}
