// internal/quiz/bank.go
package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// ErrEmptyBank is returned when ingestion yields no usable items, either
// because the input was empty or because every record failed validation.
var ErrEmptyBank = errors.New("question bank contains no valid items")

// bankRecord is the raw JSON shape accepted from a question-bank file. Fields
// are validated explicitly; nothing is trusted to be present or well-formed.
type bankRecord struct {
	Letter string `json:"letter"`
	Rule   string `json:"rule"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// ParseBank decodes a JSON array of question records into quiz items.
// Records missing a letter, prompt, or answer are dropped and counted, not
// fatal. An unknown rule is normalized to starts-with. Letters are reduced to
// a single uppercase character. A bank with no surviving records returns
// ErrEmptyBank so the caller can fall back to a degraded empty game.
func ParseBank(data []byte, logger *logrus.Logger) ([]QuizItem, error) {
	var records []bankRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	items := make([]QuizItem, 0, len(records))
	dropped := 0
	for i, rec := range records {
		letter := normalizeLetter(rec.Letter)
		prompt := strings.TrimSpace(rec.Prompt)
		answer := strings.TrimSpace(rec.Answer)
		if letter == "" || prompt == "" || answer == "" {
			dropped++
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"index":  i,
					"letter": rec.Letter,
				}).Warn("Dropping invalid question record")
			}
			continue
		}
		items = append(items, QuizItem{
			Letter: letter,
			Rule:   NormalizeRule(rec.Rule),
			Prompt: prompt,
			Answer: answer,
		})
	}

	if logger != nil && dropped > 0 {
		logger.WithFields(logrus.Fields{
			"dropped": dropped,
			"kept":    len(items),
		}).Warn("Question bank had invalid records")
	}
	if len(items) == 0 {
		return nil, ErrEmptyBank
	}
	return items, nil
}

// normalizeLetter keeps the first rune of the field, uppercased. Empty or
// whitespace-only input yields "".
func normalizeLetter(s string) string {
	s = strings.TrimSpace(s)
	for _, r := range s {
		return string(unicode.ToUpper(r))
	}
	return ""
}
