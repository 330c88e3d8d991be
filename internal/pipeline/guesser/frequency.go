package guesser

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"

	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// FrequencyIdentifier is the identifier of the built-in FrequencyGuesser.
const FrequencyIdentifier = "qanta.guesser.frequency.FrequencyGuesser"

// TrainFold is the fold guessers learn from.
const TrainFold = "train"

// FrequencyGuesser always guesses the answers seen most often in training.
type FrequencyGuesser struct {
	env    *pipeline.Env
	counts map[string]int
}

func NewFrequencyGuesser(env *pipeline.Env) (Guesser, error) {
	return &FrequencyGuesser{env: env}, nil
}

func (g *FrequencyGuesser) Requires() []task.Task {
	return []task.Task{pipeline.NewQuestionDatabase(g.env)}
}

func (g *FrequencyGuesser) Train(ctx context.Context) error {
	store, err := g.env.Questions()
	if err != nil {
		return err
	}
	all, err := store.All(ctx)
	if err != nil {
		return err
	}
	g.counts = make(map[string]int)
	for _, q := range all {
		if q.Fold == TrainFold && q.Page != "" {
			g.counts[q.Page]++
		}
	}
	if len(g.counts) == 0 {
		return errors.New("no answered questions in fold " + TrainFold)
	}
	return nil
}

// AnswerCount is one entry of a saved frequency model.
type AnswerCount struct {
	Page  string `json:"page"`
	Count int    `json:"count"`
}

// FrequencyModel is the saved form of a FrequencyGuesser, answers ordered
// by count then page.
type FrequencyModel struct {
	Fold    string        `json:"fold"`
	Answers []AnswerCount `json:"answers"`
}

func (g *FrequencyGuesser) Save(path string) error {
	if g.counts == nil {
		return errors.New("guesser has not been trained")
	}
	model := FrequencyModel{Fold: TrainFold, Answers: make([]AnswerCount, 0, len(g.counts))}
	for page, n := range g.counts {
		model.Answers = append(model.Answers, AnswerCount{Page: page, Count: n})
	}
	sort.Slice(model.Answers, func(i, j int) bool {
		a, b := model.Answers[i], model.Answers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Page < b.Page
	})
	return target.NewLocal(path).Write(func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(model)
	})
}
