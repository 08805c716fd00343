// Package sqlite persists evaluation runs and per-question answers.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/vidqa/internal/types"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type EvalRun struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
	Strategy  string
	Dataset   string
}

type EvalAnswer struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index"`
	CreatedAt   time.Time
	QID         string
	Task        string
	Question    string
	ChoicesJSON string
	Answer      string
	AnswerIndex int
	Gold        int
	Correct     bool
	Iterations  int
	Reasoning   string
	DurationMS  int64
	Error       string
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&EvalRun{}, &EvalAnswer{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateRun(ctx context.Context, strategy, dataset string) (string, error) {
	run := EvalRun{ID: uuid.NewString(), Strategy: strategy, Dataset: dataset}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// SaveAnswer records one answered question. gold < 0 means the correct
// choice is unknown and the answer is not graded.
func (s *Store) SaveAnswer(ctx context.Context, runID string, res types.Result, gold int) error {
	choices, err := json.Marshal(res.Choices)
	if err != nil {
		return err
	}
	row := EvalAnswer{
		RunID:       runID,
		QID:         res.QID,
		Task:        res.Task,
		Question:    res.Question,
		ChoicesJSON: string(choices),
		Answer:      res.Answer,
		AnswerIndex: res.AnswerIndex,
		Gold:        gold,
		Correct:     gold >= 0 && res.Error == "" && res.AnswerIndex == gold,
		Iterations:  res.Iterations,
		Reasoning:   res.Reasoning,
		DurationMS:  res.Duration.Milliseconds(),
		Error:       res.Error,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *Store) Summary(ctx context.Context, runID string) (types.EvalSummary, error) {
	var rows []EvalAnswer
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&rows).Error; err != nil {
		return types.EvalSummary{}, fmt.Errorf("load answers: %w", err)
	}

	sum := types.EvalSummary{RunID: runID, ByTask: map[string]types.TaskAccuracy{}}
	for _, r := range rows {
		sum.Total++
		if r.Error != "" {
			sum.Errors++
		}
		if r.Gold < 0 {
			continue
		}
		sum.Graded++
		ta := sum.ByTask[r.Task]
		ta.Total++
		if r.Correct {
			sum.Correct++
			ta.Correct++
		}
		sum.ByTask[r.Task] = ta
	}
	if sum.Graded > 0 {
		sum.Accuracy = float64(sum.Correct) / float64(sum.Graded)
	}
	for k, ta := range sum.ByTask {
		if ta.Total > 0 {
			ta.Accuracy = float64(ta.Correct) / float64(ta.Total)
		}
		sum.ByTask[k] = ta
	}
	return sum, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
