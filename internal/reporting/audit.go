package reporting

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

// AuditKey is the key of a position in an audit file: "question_sentence_token".
func AuditKey(question, sentence, token int) string {
	return fmt.Sprintf("%d_%d_%d", question, sentence, token)
}

// FormatAuditLine rewrites space-separated "name:id:value:weight" feature
// tokens as "name:id:product", where product is value*weight.
func FormatAuditLine(line string) (string, error) {
	fields := strings.Fields(line)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ":")
		if len(parts) != 4 {
			return "", tgerrors.NewMalformedInputError("audit", 0, f,
				fmt.Errorf("expected name:id:value:weight, got %d part(s)", len(parts)))
		}
		value, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return "", tgerrors.NewMalformedInputError("audit", 0, f, err)
		}
		weight, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return "", tgerrors.NewMalformedInputError("audit", 0, f, err)
		}
		out = append(out, parts[0]+":"+parts[1]+":"+FormatFloat(value*weight))
	}
	return strings.Join(out, " "), nil
}

// FormatFloat prints f the way the upstream tooling does: the shortest
// representation that round-trips, always with a fractional part or an
// exponent (6 -> "6.0", 1e-05 -> "1e-05").
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// LoadAudit reads the audit file at path.
func LoadAudit(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	return ReadAudit(f, path)
}

// ReadAudit parses "question_sentence_token<TAB>features" lines. Blank lines
// are skipped; a later duplicate key replaces an earlier one.
func ReadAudit(r io.Reader, source string) (map[string]string, error) {
	audit := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		key, features, ok := strings.Cut(text, "\t")
		if !ok || key == "" {
			return nil, tgerrors.NewMalformedInputError(source, lineNo, text,
				errors.New("expected key<TAB>features"))
		}
		audit[key] = features
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return audit, nil
}
