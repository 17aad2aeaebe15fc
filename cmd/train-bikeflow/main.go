// Command train-bikeflow trains and evaluates an ST-ResNet on grid bike
// flows: an initial fit with early stopping, then a continued fit, each
// scored on the train and test sets.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/config"
	"github.com/tsawler/go-stflow/dataset"
	"github.com/tsawler/go-stflow/grid"
	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/recorder"
	"github.com/tsawler/go-stflow/training"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	exp := cfg.Experiment

	fmt.Println("loading data...")
	data, err := dataset.Load(cfg, dataset.OptionsFrom(exp))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", exp.Dataset, err)
	}
	fmt.Println("\n days (test): ", data.TestDays(exp.T))

	separator()
	fmt.Println("compiling model...")
	views := layers.ViewConfigs{
		layers.Closeness: layers.NewViewConfig(exp.Closeness, exp.Flows, exp.Height, exp.Width),
		layers.Period:    layers.NewViewConfig(exp.Period, exp.Flows, exp.Height, exp.Width),
		layers.Trend:     layers.NewViewConfig(exp.ActiveTrend(), exp.Flows, exp.Height, exp.Width),
	}
	model, err := training.BuildModel(data.ExternalDim, views, exp.ResidualUnits, exp.LearningRate,
		training.WithFilters(exp.Filters),
		training.WithSeed(exp.Seed),
		training.WithProgress(os.Stdout),
	)
	if err != nil {
		return err
	}
	model.Summary(os.Stdout)

	hp := training.Hyperparams{
		Closeness:     exp.Closeness,
		Period:        exp.Period,
		Trend:         exp.Trend,
		ResidualUnits: exp.ResidualUnits,
		LearningRate:  exp.LearningRate,
		BatchSize:     exp.BatchSize,
		Epochs:        exp.Epochs,
		ContEpochs:    exp.ContEpochs,
	}

	areas := exp.Areas
	if data.ActiveAreas > 0 {
		areas = data.ActiveAreas
	}
	scale := data.Normalizer.Scale() * grid.AreaFactor(exp.Height, exp.Width, areas)

	stage1 := training.DefaultStage1Config()
	stage1.Patience = exp.Patience
	stage1.ValidationSplit = exp.ValidationSplit

	var observer training.Observer = training.NopObserver{}
	var ledger *recorder.Observer
	if cfg.RecorderDriver != "" {
		rec, err := recorder.Open(ctx, cfg.RecorderDriver, cfg.RecorderDSN)
		if err != nil {
			return err
		}
		defer rec.Close()
		host := recorder.DescribeHost()
		log.Printf("Host: %s", host)
		r, err := rec.StartRun(ctx, hp.Key(), host)
		if err != nil {
			return err
		}
		ledger = recorder.NewObserver(ctx, rec, r, nil)
		observer = ledger
	}

	store := checkpoints.NewStore(cfg.ResultsDir, cfg.ModelsDir, checkpoints.FormatProto)
	orch, err := training.NewOrchestrator(model, store,
		&training.Data{X: data.XTrain, Y: data.YTrain},
		&training.Data{X: data.XTest, Y: data.YTest},
		training.OrchestratorConfig{
			Hyperparams: hp,
			Stage1:      stage1,
			Stage2:      training.DefaultStage2Config(),
			Seed:        exp.Seed,
			Scale:       scale,
			Observer:    observer,
			Logger:      log.New(os.Stdout, "", log.LstdFlags),
		})
	if err != nil {
		return err
	}

	separator()
	fmt.Println("training model...")
	report, err := orch.Run()
	if err != nil {
		if ledger != nil {
			ledger.Fail(err)
		}
		return err
	}

	separator()
	fmt.Println("evaluating using the model that has the best loss on the valid set")
	fmt.Println(training.FormatScore("Train", report.Stage1.Train))
	fmt.Println(training.FormatScore("Test", report.Stage1.Test))
	separator()
	fmt.Println("evaluating using the final model")
	fmt.Println(training.FormatScore("Train", report.Stage2.Train))
	fmt.Println(training.FormatScore("Test", report.Stage2.Test))
	return nil
}

func separator() { fmt.Println(strings.Repeat("=", 10)) }
