// internal/quiz/bank_test.go
package quiz

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel) // keep test output quiet
	return l
}

func TestParseBankValidRecords(t *testing.T) {
	data := []byte(`[
		{"letter": "a", "rule": "starts-with", "prompt": "Capital of France? No.", "answer": "Avocado"},
		{"letter": "B", "rule": "contains", "prompt": "Has a B in it", "answer": "Abbey"},
		{"letter": "c", "rule": "ends-with", "prompt": "Ends with C", "answer": "Magic"}
	]`)

	items, err := ParseBank(data, testLogger())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "A", items[0].Letter, "letters should be uppercased")
	assert.Equal(t, RuleStartsWith, items[0].Rule)
	assert.Equal(t, RuleContains, items[1].Rule)
	assert.Equal(t, RuleEndsWith, items[2].Rule)
}

func TestParseBankNormalizesUnknownRule(t *testing.T) {
	data := []byte(`[
		{"letter": "d", "rule": "rhymes-with", "prompt": "p", "answer": "a"},
		{"letter": "e", "prompt": "p", "answer": "a"}
	]`)

	items, err := ParseBank(data, testLogger())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, RuleStartsWith, items[0].Rule)
	assert.Equal(t, RuleStartsWith, items[1].Rule)
}

func TestParseBankDropsInvalidRecords(t *testing.T) {
	data := []byte(`[
		{"letter": "", "rule": "contains", "prompt": "no letter", "answer": "x"},
		{"letter": "f", "rule": "contains", "prompt": "", "answer": "x"},
		{"letter": "g", "rule": "contains", "prompt": "no answer", "answer": "  "},
		{"letter": "h", "rule": "contains", "prompt": "fine", "answer": "hooray"}
	]`)

	items, err := ParseBank(data, testLogger())
	require.NoError(t, err, "invalid records are dropped, not fatal")
	require.Len(t, items, 1)
	assert.Equal(t, "H", items[0].Letter)
}

func TestParseBankEmptyResultIsError(t *testing.T) {
	_, err := ParseBank([]byte(`[]`), testLogger())
	assert.ErrorIs(t, err, ErrEmptyBank)

	_, err = ParseBank([]byte(`[{"letter": "", "prompt": "", "answer": ""}]`), testLogger())
	assert.ErrorIs(t, err, ErrEmptyBank, "all-invalid bank is an empty bank")
}

func TestParseBankMalformedJSON(t *testing.T) {
	_, err := ParseBank([]byte(`{"not": "an array"}`), testLogger())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyBank)
}

func TestNormalizeLetterMultiRune(t *testing.T) {
	data := []byte(`[{"letter": "  ñu  ", "rule": "contains", "prompt": "p", "answer": "a"}]`)
	items, err := ParseBank(data, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "Ñ", items[0].Letter, "only the first rune survives, uppercased")
}
