package training

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/tsawler/go-stflow/checkpoints"
)

// ErrAlreadyRun is returned by a second call to Orchestrator.Run.
var ErrAlreadyRun = errors.New("orchestrator has already run")

// State is a phase of the two-stage training protocol.
type State int

const (
	Idle State = iota
	Stage1Running
	Stage1Evaluated
	Stage2Running
	Stage2Evaluated
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Stage1Running:
		return "Stage1Running"
	case Stage1Evaluated:
		return "Stage1Evaluated"
	case Stage2Running:
		return "Stage2Running"
	case Stage2Evaluated:
		return "Stage2Evaluated"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Observer is notified as a run progresses. Embed NopObserver to implement
// only some of the methods.
type Observer interface {
	StateChanged(from, to State)
	EpochEnded(stage checkpoints.Stage, epoch int, logs map[string]float64)
	CheckpointSaved(stage checkpoints.Stage, kind checkpoints.Kind, epoch int, path string)
	ScoresReported(stage checkpoints.Stage, train, test Score)
}

type NopObserver struct{}

func (NopObserver) StateChanged(from, to State) {}
func (NopObserver) EpochEnded(checkpoints.Stage, int, map[string]float64) {}
func (NopObserver) CheckpointSaved(checkpoints.Stage, checkpoints.Kind, int, string) {}
func (NopObserver) ScoresReported(checkpoints.Stage, Score, Score) {}

// StageConfig configures the callbacks of one stage.
type StageConfig struct {
	// Monitor is the metric the best checkpoint tracks (lower is better).
	Monitor string
	// Patience enables early stopping on Monitor when positive.
	Patience int
	// ValidationSplit holds out the tail of the training data. Zero uses
	// the test set as validation data instead.
	ValidationSplit float64
}

// DefaultStage1Config monitors val_rmse on a 10% holdout with patience 5.
func DefaultStage1Config() StageConfig {
	return StageConfig{Monitor: MetricValRMSE, Patience: 5, ValidationSplit: 0.1}
}

// DefaultStage2Config monitors the training rmse without early stopping.
func DefaultStage2Config() StageConfig {
	return StageConfig{Monitor: MetricRMSE}
}

// OrchestratorConfig holds everything a run needs besides the model and data.
type OrchestratorConfig struct {
	Hyperparams Hyperparams
	Stage1      StageConfig
	Stage2      StageConfig

	// Seed drives per-epoch shuffling.
	Seed int64

	// Scale converts normalized RMSE into flow units; zero disables it.
	Scale float64

	Observer Observer
	Logger   *log.Logger
}

// StageReport summarizes one stage of a run.
type StageReport struct {
	History      checkpoints.History
	EpochsRun    int
	StoppedEarly bool
	Best         float64
	Train        Score
	Test         Score
}

// Report is the outcome of a complete run.
type Report struct {
	Key    string
	Stage1 StageReport
	Stage2 StageReport
}

// Orchestrator drives a model through the two-stage protocol:
//
//	Idle -> Stage1Running -> Stage1Evaluated -> Stage2Running -> Stage2Evaluated -> Done
//
// Stage 1 fits with a held-out tail, keeps the best weights by Stage1.Monitor
// and may stop early; the best weights are then scored. Stage 2 continues
// training the same model with the test set as validation data and scores
// the end-of-training weights.
type Orchestrator struct {
	model  Predictor
	store  *checkpoints.Store
	train  *Data
	test   *Data
	config OrchestratorConfig
	rng    *rand.Rand
	state  State
	ran    bool
}

// NewOrchestrator validates the configuration and checks both datasets
// against the model's input signature before anything is trained.
func NewOrchestrator(model Predictor, store *checkpoints.Store, train, test *Data, config OrchestratorConfig) (*Orchestrator, error) {
	if model == nil || store == nil {
		return nil, fmt.Errorf("model and store are required")
	}
	if err := config.Hyperparams.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hyperparameters: %w", err)
	}
	if config.Stage1.Monitor == "" || config.Stage2.Monitor == "" {
		return nil, fmt.Errorf("both stages need a monitored metric")
	}
	if err := ValidateData(model.InputSignature(), train); err != nil {
		return nil, fmt.Errorf("training data: %w", err)
	}
	if err := ValidateData(model.InputSignature(), test); err != nil {
		return nil, fmt.Errorf("test data: %w", err)
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("training and test data must be non-empty")
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	return &Orchestrator{
		model:  model,
		store:  store,
		train:  train,
		test:   test,
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		state:  Idle,
	}, nil
}

func (o *Orchestrator) State() State { return o.state }

// Key is the hyperparameter key naming this run's artifacts.
func (o *Orchestrator) Key() string { return o.config.Hyperparams.Key() }

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	o.config.Logger.Printf("state %s -> %s", from, to)
	o.config.Observer.StateChanged(from, to)
}

// Run executes the protocol once. Any I/O or model error aborts the run in
// the state where it happened.
func (o *Orchestrator) Run() (*Report, error) {
	if o.ran {
		return nil, ErrAlreadyRun
	}
	o.ran = true

	if err := o.store.EnsureDirs(); err != nil {
		return nil, err
	}

	report := &Report{Key: o.Key()}
	hp := o.config.Hyperparams

	o.transition(Stage1Running)
	stage1, err := o.runStage(checkpoints.StageInitial, o.config.Stage1, hp.Epochs)
	if err != nil {
		return nil, fmt.Errorf("stage 1: %w", err)
	}

	// Score the best stage 1 weights.
	if err := stage1.manager.LoadBestCheckpoint(); err != nil {
		return nil, fmt.Errorf("stage 1: %w", err)
	}
	if err := o.score(checkpoints.StageInitial, &stage1.report); err != nil {
		return nil, fmt.Errorf("stage 1: %w", err)
	}
	report.Stage1 = stage1.report
	o.transition(Stage1Evaluated)

	o.transition(Stage2Running)
	stage2, err := o.runStage(checkpoints.StageCont, o.config.Stage2, hp.ContEpochs)
	if err != nil {
		return nil, fmt.Errorf("stage 2: %w", err)
	}

	// Stage 2 is scored with the end-of-training weights.
	if err := o.score(checkpoints.StageCont, &stage2.report); err != nil {
		return nil, fmt.Errorf("stage 2: %w", err)
	}
	report.Stage2 = stage2.report
	o.transition(Stage2Evaluated)

	o.transition(Done)
	return report, nil
}

type stageRun struct {
	manager *CheckpointManager
	report  StageReport
}

func (o *Orchestrator) runStage(stage checkpoints.Stage, sc StageConfig, epochs int) (*stageRun, error) {
	key := o.Key()
	hp := o.config.Hyperparams
	o.config.Logger.Printf("training %s stage of %s for %d epochs", stage, key, epochs)

	manager := NewCheckpointManager(o.store, o.model, key, stage, sc.Monitor)
	manager.onSave = func(epoch int, path string) {
		o.config.Observer.CheckpointSaved(stage, checkpoints.KindBest, epoch, path)
	}
	callbacks := []Callback{manager}
	var stopper *EarlyStopping
	if sc.Patience > 0 {
		stopper = NewEarlyStopping(sc.Monitor, sc.Patience)
		callbacks = append(callbacks, stopper)
	}

	fc := FitConfig{
		Epochs:    epochs,
		BatchSize: hp.BatchSize,
		Callbacks: callbacks,
		RNG:       o.rng,
		OnEpoch: func(epoch int, logs map[string]float64) {
			o.config.Logger.Printf("%s epoch %d/%d %s", stage, epoch+1, epochs, formatLogs(logs))
			o.config.Observer.EpochEnded(stage, epoch, logs)
		},
	}
	if sc.ValidationSplit > 0 {
		fc.ValidationSplit = sc.ValidationSplit
	} else {
		fc.ValidationData = o.test
	}

	result, err := Fit(o.model, o.train, fc)
	if err != nil {
		return nil, err
	}
	if stopper != nil && result.StoppedEarly {
		o.config.Logger.Printf("%s stage stopped early at epoch %d", stage, stopper.StoppedEpoch()+1)
	}

	if err := manager.SaveFinalCheckpoint(result.EpochsRun); err != nil {
		return nil, err
	}
	o.config.Observer.CheckpointSaved(stage, checkpoints.KindFinal, result.EpochsRun, o.store.Path(key, stage, checkpoints.KindFinal))
	if err := o.store.SaveHistory(key, stage, result.History); err != nil {
		return nil, err
	}

	return &stageRun{
		manager: manager,
		report: StageReport{
			History:      result.History,
			EpochsRun:    result.EpochsRun,
			StoppedEarly: result.StoppedEarly,
			Best:         manager.Best(),
		},
	}, nil
}

func (o *Orchestrator) score(stage checkpoints.Stage, r *StageReport) error {
	train, test, err := EvaluateSplits(o.model, o.train, o.test, o.config.Scale)
	if err != nil {
		return err
	}
	r.Train, r.Test = train, test
	o.config.Logger.Print(FormatScore("Train", train))
	o.config.Logger.Print(FormatScore("Test", test))
	o.config.Observer.ScoresReported(stage, train, test)
	return nil
}

func formatLogs(logs map[string]float64) string {
	s := ""
	for _, k := range []string{MetricLoss, MetricRMSE, MetricValLoss, MetricValRMSE} {
		if v, ok := logs[k]; ok {
			s += fmt.Sprintf(" - %s: %.4f", k, v)
		}
	}
	return s
}
