package questions

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

// ImportHeader is the required header of an import CSV. Each row holds one
// sentence of one question.
var ImportHeader = []string{"qnum", "fold", "page", "sentence", "text"}

type importMarker struct {
	Questions int       `json:"questions"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// ImportCSV reads question sentences from r and writes the assembled
// questions in one batch. Existing questions with the same number are
// replaced. It returns the number of questions written.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, source string) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(ImportHeader)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return 0, tgerrors.NewMalformedInputError(source, 1, "", fmt.Errorf("read header: %w", err))
	}
	if strings.Join(header, ",") != strings.Join(ImportHeader, ",") {
		return 0, tgerrors.NewMalformedInputError(source, 1, strings.Join(header, ","),
			fmt.Errorf("expected header %s", strings.Join(ImportHeader, ",")))
	}

	byNum := make(map[int]*Question)
	var order []int
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, tgerrors.NewMalformedInputError(source, line, "", err)
		}
		raw := strings.Join(rec, ",")

		qnum, err := strconv.Atoi(rec[0])
		if err != nil {
			return 0, tgerrors.NewMalformedInputError(source, line, raw, fmt.Errorf("qnum: %w", err))
		}
		sent, err := strconv.Atoi(rec[3])
		if err != nil || sent < 0 {
			return 0, tgerrors.NewMalformedInputError(source, line, raw, fmt.Errorf("sentence must be a non-negative integer"))
		}

		q, ok := byNum[qnum]
		if !ok {
			q = &Question{QNum: qnum, Fold: rec[1], Page: rec[2], Text: make(map[int]string)}
			byNum[qnum] = q
			order = append(order, qnum)
		} else if q.Fold != rec[1] || q.Page != rec[2] {
			return 0, tgerrors.NewMalformedInputError(source, line, raw,
				fmt.Errorf("question %d has conflicting fold or page", qnum))
		}
		if _, dup := q.Text[sent]; dup {
			return 0, tgerrors.NewMalformedInputError(source, line, raw,
				fmt.Errorf("question %d sentence %d given twice", qnum, sent))
		}
		q.Text[sent] = rec[4]
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, qnum := range order {
		data, err := json.Marshal(byNum[qnum])
		if err != nil {
			return 0, fmt.Errorf("encode question %d: %w", qnum, err)
		}
		if err := wb.Set([]byte(Key(qnum)), data); err != nil {
			return 0, fmt.Errorf("write question %d: %w", qnum, err)
		}
	}
	marker, err := json.Marshal(importMarker{Questions: len(order), Source: source, At: time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	if err := wb.Set([]byte(ImportedKey), marker); err != nil {
		return 0, fmt.Errorf("write import marker: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush questions: %w", err)
	}
	return len(order), nil
}
