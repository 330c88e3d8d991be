package reporting

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

type position struct {
	question, sentence, token int
}

// LoadPredictions reads a prediction file and its meta file.
func LoadPredictions(predPath, metaPath string) ([]QuestionLines, error) {
	pred, err := os.Open(predPath)
	if err != nil {
		return nil, fmt.Errorf("open predictions: %w", err)
	}
	defer pred.Close()
	meta, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open meta: %w", err)
	}
	defer meta.Close()
	return ReadPredictions(pred, predPath, meta, metaPath)
}

// ReadPredictions pairs line i of the prediction stream (a score, optionally
// followed by a tag) with line i of the meta stream
// ("question<TAB>sentence<TAB>token<TAB>guess"). Candidates are grouped per
// position; a position buzzes when its best score is positive. Questions are
// returned by ascending id and their lines by (sentence, token).
func ReadPredictions(pred io.Reader, predSource string, meta io.Reader, metaSource string) ([]QuestionLines, error) {
	predScanner := bufio.NewScanner(pred)
	metaScanner := bufio.NewScanner(meta)
	groups := make(map[position][]Guess)
	lineNo := 0

	for {
		hasPred := predScanner.Scan()
		hasMeta := metaScanner.Scan()
		if !hasPred || !hasMeta {
			if err := predScanner.Err(); err != nil {
				return nil, fmt.Errorf("read %s: %w", predSource, err)
			}
			if err := metaScanner.Err(); err != nil {
				return nil, fmt.Errorf("read %s: %w", metaSource, err)
			}
			if hasPred != hasMeta {
				return nil, tgerrors.NewMalformedInputError(predSource, lineNo+1, "",
					fmt.Errorf("%s and %s have different line counts", predSource, metaSource))
			}
			break
		}
		lineNo++

		score, err := parseScore(predScanner.Text())
		if err != nil {
			return nil, tgerrors.NewMalformedInputError(predSource, lineNo, predScanner.Text(), err)
		}
		pos, guess, err := parseMeta(metaScanner.Text())
		if err != nil {
			return nil, tgerrors.NewMalformedInputError(metaSource, lineNo, metaScanner.Text(), err)
		}
		groups[pos] = append(groups[pos], Guess{Guess: guess, Score: score})
	}

	positions := make([]position, 0, len(groups))
	for p := range groups {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.question != b.question {
			return a.question < b.question
		}
		if a.sentence != b.sentence {
			return a.sentence < b.sentence
		}
		return a.token < b.token
	})

	var out []QuestionLines
	for _, p := range positions {
		guesses := groups[p]
		sort.SliceStable(guesses, func(i, j int) bool { return guesses[i].Score > guesses[j].Score })
		line := Line{
			Question:   p.question,
			Sentence:   p.sentence,
			Token:      p.token,
			Guess:      guesses[0].Guess,
			Score:      guesses[0].Score,
			Buzz:       guesses[0].Score > 0,
			AllGuesses: guesses,
		}
		if n := len(out); n == 0 || out[n-1].Question != p.question {
			out = append(out, QuestionLines{Question: p.question})
		}
		last := &out[len(out)-1]
		last.Lines = append(last.Lines, line)
	}
	return out, nil
}

func parseScore(text string) (float64, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, errors.New("expected 'score [tag]'")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func parseMeta(text string) (position, string, error) {
	parts := strings.Split(text, "\t")
	if len(parts) != 4 {
		return position{}, "", fmt.Errorf("expected 4 tab-separated fields, got %d", len(parts))
	}
	var p position
	var err error
	if p.question, err = strconv.Atoi(parts[0]); err != nil {
		return position{}, "", fmt.Errorf("question: %w", err)
	}
	if p.sentence, err = strconv.Atoi(parts[1]); err != nil {
		return position{}, "", fmt.Errorf("sentence: %w", err)
	}
	if p.token, err = strconv.Atoi(parts[2]); err != nil {
		return position{}, "", fmt.Errorf("token: %w", err)
	}
	if parts[3] == "" {
		return position{}, "", errors.New("empty guess")
	}
	return p, parts[3], nil
}
