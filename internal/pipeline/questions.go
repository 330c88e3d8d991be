package pipeline

import (
	"github.com/gxo-labs/taskgraph/internal/questions"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// FamilyQuestionDatabase is the family of the question database input.
const FamilyQuestionDatabase = "QuestionDatabase"

// QuestionDatabase is the imported question database. It is produced by
// the import-questions command, never by a pass.
type QuestionDatabase struct {
	task.External
	env *Env
}

func NewQuestionDatabase(env *Env) *QuestionDatabase {
	return &QuestionDatabase{env: env}
}

func (*QuestionDatabase) Family() string { return FamilyQuestionDatabase }

// Output checks the directory before the import marker, so a missing
// database is never opened.
func (q *QuestionDatabase) Output() []task.Target {
	return []task.Target{
		target.NewLocal(q.env.Config.Paths.QuestionDB),
		&target.KeyTarget{Store: q.env, Key: questions.ImportedKey, Name: "questions"},
	}
}
