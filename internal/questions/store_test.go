package questions_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/questions"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

func openInMemory(t *testing.T) *questions.Store {
	t.Helper()
	s, err := questions.Open(questions.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetHas(t *testing.T) {
	s := openInMemory(t)
	q := &questions.Question{QNum: 42, Fold: "test", Page: "Paris", Text: map[int]string{0: "City of light.", 1: "Name it."}}
	require.NoError(t, s.Put(q))

	got, err := s.Get(42)
	require.NoError(t, err)
	assert.Equal(t, q, got)
	assert.Equal(t, 1, got.MaxSentence())

	ok, err := s.Has(questions.Key(42))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Has(questions.Key(7))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(7)
	assert.ErrorIs(t, err, questions.ErrNotFound)
}

func TestStore_AllIsOrdered(t *testing.T) {
	s := openInMemory(t)
	for _, n := range []int{100, 3, 25} {
		require.NoError(t, s.Put(&questions.Question{QNum: n, Fold: "dev", Text: map[int]string{0: "x"}}))
	}
	all, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{3, 25, 100}, []int{all[0].QNum, all[1].QNum, all[2].QNum})
}

func TestStore_ImportCSV(t *testing.T) {
	s := openInMemory(t)
	input := "qnum,fold,page,sentence,text\n" +
		"1,test,Paris,0,\"City of light, and more.\"\n" +
		"1,test,Paris,1,Name it.\n" +
		"2,train,Rome,0,Eternal city.\n"

	n, err := s.ImportCSV(context.Background(), strings.NewReader(input), "questions.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	imported, err := s.Has(questions.ImportedKey)
	require.NoError(t, err)
	assert.True(t, imported)

	q, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "Paris", q.Page)
	assert.Equal(t, map[int]string{0: "City of light, and more.", 1: "Name it."}, q.Text)
}

func TestStore_ImportCSV_Malformed(t *testing.T) {
	tests := map[string]string{
		"bad header":        "id,fold,page,sentence,text\n",
		"bad qnum":          "qnum,fold,page,sentence,text\nx,test,P,0,t\n",
		"negative sentence": "qnum,fold,page,sentence,text\n1,test,P,-1,t\n",
		"conflicting page":  "qnum,fold,page,sentence,text\n1,test,P,0,t\n1,test,Q,1,t\n",
		"duplicate":         "qnum,fold,page,sentence,text\n1,test,P,0,t\n1,test,P,0,u\n",
		"short row":         "qnum,fold,page,sentence,text\n1,test,P\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			s := openInMemory(t)
			_, err := s.ImportCSV(context.Background(), strings.NewReader(input), "q.csv")
			var malformed *tgerrors.MalformedInputError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "q.csv", malformed.Source)

			all, err := s.All(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all, "nothing is written when the import fails")
			imported, err := s.Has(questions.ImportedKey)
			require.NoError(t, err)
			assert.False(t, imported)
		})
	}
}

func TestStore_PersistentReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := questions.Open(questions.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Put(&questions.Question{QNum: 9, Fold: "test", Page: "Oslo", Text: map[int]string{0: "x"}}))
	require.NoError(t, s.Close())

	cfg := questions.DefaultConfig(dir)
	cfg.ReadOnly = true
	s, err = questions.Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	q, err := s.Get(9)
	require.NoError(t, err)
	assert.Equal(t, "Oslo", q.Page)
}

func TestPeek_LeavesMissingStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	ok, err := questions.Peek(dir, questions.ImportedKey, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPeek_SeesImportedStoreAndReleasesIt(t *testing.T) {
	dir := t.TempDir()
	s, err := questions.Open(questions.DefaultConfig(dir))
	require.NoError(t, err)
	_, err = s.ImportCSV(context.Background(), strings.NewReader(
		"qnum,fold,page,sentence,text\n1,train,Paris,0,City of light.\n"), "inline")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ok, err := questions.Peek(dir, questions.ImportedKey, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = questions.Peek(dir, questions.Key(99), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	s, err = questions.Open(questions.DefaultConfig(dir))
	require.NoError(t, err, "peeking must not keep the store locked")
	require.NoError(t, s.Close())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := questions.Open(questions.Config{})
	assert.Error(t, err)
}
