// Package reporting turns classifier predictions into the per-position
// guess lines consumed by the expo exports.
package reporting

import (
	"errors"
)

// Guess is one candidate answer with its classifier score.
type Guess struct {
	Guess string
	Score float64
}

// Line is the prediction state at one (question, sentence, token) position.
// Guess and Score are those of the best candidate; AllGuesses is sorted by
// descending score.
type Line struct {
	Question   int
	Sentence   int
	Token      int
	Guess      string
	Score      float64
	Buzz       bool
	AllGuesses []Guess
}

// QuestionLines holds every position of one question in reading order.
type QuestionLines struct {
	Question int
	Lines    []Line
}

// ErrNoLines is returned by FindFinal for an empty question.
var ErrNoLines = errors.New("no prediction lines")

// FindFinal returns the position and guess of the first line that buzzes.
// When no line buzzes the position is (-1, -1) and the guess is the one of
// the last line.
func FindFinal(lines []Line) (sentence, token int, guess string, err error) {
	if len(lines) == 0 {
		return 0, 0, "", ErrNoLines
	}
	for _, l := range lines {
		if l.Buzz {
			return l.Sentence, l.Token, l.Guess, nil
		}
	}
	return -1, -1, lines[len(lines)-1].Guess, nil
}
