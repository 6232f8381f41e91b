package ingest

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
)

// maxKeywords caps how many keywords ingestion reports per document.
const maxKeywords = 10

// Keyword is a scored term found in document text.
type Keyword struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

var stopWords = mapset.NewSet[string](
	"the", "a", "an", "and", "or", "but", "in", "on", "at",
	"to", "for", "of", "with", "by", "is", "are", "be", "this",
)

// contractTerms get a scoring boost: they carry most of the signal for
// downstream type detection and review triage.
var contractTerms = mapset.NewSet[string](
	"deliverable", "deliverables", "milestone", "milestones",
	"payment", "payments", "deadline", "deadlines", "invoice",
	"contract", "agreement", "amendment", "stakeholder", "vendor",
	"client", "scope", "termination", "penalty", "fee", "warranty",
)

const contractTermBoost = 1.5

// ExtractKeywords scores nouns by frequency, boosting contract
// vocabulary, and returns the top n terms.
func ExtractKeywords(text string, n int) []Keyword {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	scores := make(map[string]float64)
	for _, tok := range doc.Tokens() {
		if len(tok.Tag) == 0 || tok.Tag[0] != 'N' {
			continue
		}
		word := strings.ToLower(tok.Text)
		if len(word) < 3 || stopWords.Contains(word) {
			continue
		}
		scores[word] += 1.0
	}

	for word := range scores {
		if contractTerms.Contains(word) {
			scores[word] *= contractTermBoost
		}
	}

	keywords := make([]Keyword, 0, len(scores))
	for word, score := range scores {
		keywords = append(keywords, Keyword{Text: word, Score: score})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Score != keywords[j].Score {
			return keywords[i].Score > keywords[j].Score
		}
		return keywords[i].Text < keywords[j].Text
	})

	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}
