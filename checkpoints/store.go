package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a requested checkpoint or history file does
// not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Stage identifies the training stage a file belongs to.
type Stage string

const (
	StageInitial Stage = "initial"
	StageCont    Stage = "cont"
)

// Kind distinguishes the best-so-far snapshot from the end-of-stage one.
type Kind string

const (
	KindBest  Kind = "best"
	KindFinal Kind = "final"
)

// Store lays out checkpoints and histories for a hyperparameter key:
//
//	<models>/<key>.best.pb        best snapshot, initial stage
//	<models>/<key>.pb             final snapshot, initial stage
//	<models>/<key>.cont.best.pb   best snapshot, continuation stage
//	<models>/<key>_cont.pb        final snapshot, continuation stage
//	<results>/<key>.history.json
//	<results>/<key>.cont.history.json
type Store struct {
	ResultsDir string
	ModelsDir  string
	saver      *CheckpointSaver
}

func NewStore(resultsDir, modelsDir string, format CheckpointFormat) *Store {
	return &Store{
		ResultsDir: resultsDir,
		ModelsDir:  modelsDir,
		saver:      NewCheckpointSaver(format),
	}
}

// EnsureDirs creates the results and models directories.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.ResultsDir, s.ModelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	return nil
}

// Path returns the checkpoint file for key, stage and kind.
func (s *Store) Path(key string, stage Stage, kind Kind) string {
	ext := s.saver.Format().Extension()
	var name string
	switch {
	case stage == StageCont && kind == KindBest:
		name = key + ".cont.best" + ext
	case stage == StageCont:
		name = key + "_cont" + ext
	case kind == KindBest:
		name = key + ".best" + ext
	default:
		name = key + ext
	}
	return filepath.Join(s.ModelsDir, name)
}

// HistoryPath returns the per-epoch metrics file for key and stage.
func (s *Store) HistoryPath(key string, stage Stage) string {
	if stage == StageCont {
		return filepath.Join(s.ResultsDir, key+".cont.history.json")
	}
	return filepath.Join(s.ResultsDir, key+".history.json")
}

// Save writes the checkpoint atomically. A reader sees either the previous
// file or the complete new one.
func (s *Store) Save(key string, stage Stage, kind Kind, c *Checkpoint) error {
	path := s.Path(key, stage, kind)
	return writeAtomic(path, func(tmp string) error {
		return s.saver.SaveCheckpoint(c, tmp)
	})
}

// Load reads a checkpoint. It returns an error wrapping ErrNotFound when the
// file is missing.
func (s *Store) Load(key string, stage Stage, kind Kind) (*Checkpoint, error) {
	path := s.Path(key, stage, kind)
	c, err := s.saver.LoadCheckpoint(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return c, err
}

// Exists reports whether the checkpoint file is present.
func (s *Store) Exists(key string, stage Stage, kind Kind) bool {
	_, err := os.Stat(s.Path(key, stage, kind))
	return err == nil
}

// SaveHistory writes the history as JSON, atomically.
func (s *Store) SaveHistory(key string, stage Stage, h History) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode history: %v", err)
	}
	return writeAtomic(s.HistoryPath(key, stage), func(tmp string) error {
		return os.WriteFile(tmp, data, 0644)
	})
}

func (s *Store) LoadHistory(key string, stage Stage) (History, error) {
	path := s.HistoryPath(key, stage)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %v", path, err)
	}
	return h, nil
}

// writeAtomic lets write fill a temp file next to path, then renames it
// into place.
func writeAtomic(path string, write func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	tmp := f.Name()
	f.Close()

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %v", path, err)
	}
	return nil
}
