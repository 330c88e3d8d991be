package reporting

import (
	"fmt"
	"io"
)

// MaxBuzzGuesses is how many candidates per position the buzz export keeps.
const MaxBuzzGuesses = 5

// WriteExpo writes the buzz and final exports for data.
//
// For every position the buzz export has one row per candidate (at most
// MaxBuzzGuesses) carrying the formatted audit evidence of that position,
// a final flag set on the buzzing guess, and the candidate score. The final
// export has one row per question: the guess at its first buzz, or the last
// guess when it never buzzes.
func WriteExpo(data []QuestionLines, audit map[string]string, buzz, final io.Writer) error {
	buzzW, err := NewCSVWriter(buzz, ExpoBuzzHeader)
	if err != nil {
		return fmt.Errorf("write buzz header: %w", err)
	}
	finalW, err := NewCSVWriter(final, ExpoFinalHeader)
	if err != nil {
		return fmt.Errorf("write final header: %w", err)
	}

	for _, q := range data {
		finalSentence, finalToken, finalGuess, err := FindFinal(q.Lines)
		if err != nil {
			return fmt.Errorf("question %d: %w", q.Question, err)
		}
		if finalSentence == -1 && finalToken == -1 {
			if err := finalW.Write(q.Question, finalGuess); err != nil {
				return err
			}
		}

		for _, l := range q.Lines {
			isFinal := l.Sentence == finalSentence && l.Token == finalToken
			if isFinal {
				if err := finalW.Write(q.Question, l.Guess); err != nil {
					return err
				}
			}

			key := AuditKey(l.Question, l.Sentence, l.Token)
			raw, ok := audit[key]
			if !ok {
				return fmt.Errorf("no audit entry for position %s", key)
			}
			evidence, err := FormatAuditLine(raw)
			if err != nil {
				return fmt.Errorf("audit entry %s: %w", key, err)
			}

			for i, g := range l.AllGuesses {
				if i == MaxBuzzGuesses {
					break
				}
				flag := 0
				if isFinal && g.Guess == l.Guess {
					flag = 1
				}
				if err := buzzW.Write(l.Question, l.Sentence, l.Token, g.Guess, evidence, flag, g.Score); err != nil {
					return err
				}
			}
		}
	}

	if err := buzzW.Flush(); err != nil {
		return fmt.Errorf("flush buzz export: %w", err)
	}
	if err := finalW.Flush(); err != nil {
		return fmt.Errorf("flush final export: %w", err)
	}
	return nil
}
