package ingest

import (
	"strings"

	"github.com/athapong/docflow/pkg/extraction"
)

// typeDetectionOrder fixes which document type wins a keyword-score tie.
var typeDetectionOrder = []extraction.DocumentType{
	extraction.DocumentTypeSOW,
	extraction.DocumentTypeContract,
	extraction.DocumentTypeEmail,
	extraction.DocumentTypeAmendment,
	extraction.DocumentTypeMSA,
}

var typeKeywords = map[extraction.DocumentType][]string{
	extraction.DocumentTypeSOW: {
		"statement of work",
		"scope of work",
		"sow",
		"deliverables",
		"milestones",
		"project scope",
	},
	extraction.DocumentTypeContract: {
		"agreement",
		"contract",
		"terms and conditions",
		"binding agreement",
		"hereby agrees",
		"parties agree",
	},
	extraction.DocumentTypeMSA: {
		"master service agreement",
		"master services agreement",
		"msa",
		"framework agreement",
	},
	extraction.DocumentTypeAmendment: {
		"amendment",
		"addendum",
		"modification",
		"change order",
	},
	extraction.DocumentTypeEmail: {
		"from:",
		"to:",
		"subject:",
		"sent:",
		"cc:",
		"re:",
	},
}

var structuredKeywords = []string{
	"section",
	"article",
	"clause",
	"1.",
	"2.",
	"a)",
	"b)",
	"table of contents",
}

var semiStructuredKeywords = []string{
	"regarding",
	"as discussed",
	"please find",
	"attached",
}

// DetectDocumentType classifies text by keyword hits. Ties go to the
// earliest type in the detection order; no hits at all means other.
func DetectDocumentType(text string) extraction.DocumentType {
	textLower := strings.ToLower(text)

	scores := make(map[extraction.DocumentType]int, len(typeKeywords))
	maxScore := 0
	for docType, keywords := range typeKeywords {
		for _, keyword := range keywords {
			if strings.Contains(textLower, keyword) {
				scores[docType]++
			}
		}
		if scores[docType] > maxScore {
			maxScore = scores[docType]
		}
	}

	if maxScore == 0 {
		return extraction.DocumentTypeOther
	}

	for _, docType := range typeDetectionOrder {
		if scores[docType] == maxScore {
			return docType
		}
	}
	return extraction.DocumentTypeOther
}

// DetectStructure classifies how much formal structure the text shows.
func DetectStructure(text string) extraction.StructureType {
	textLower := strings.ToLower(text)

	structuredCount := 0
	for _, keyword := range structuredKeywords {
		if strings.Contains(textLower, keyword) {
			structuredCount++
		}
	}

	semiCount := 0
	for _, keyword := range semiStructuredKeywords {
		if strings.Contains(textLower, keyword) {
			semiCount++
		}
	}

	switch {
	case structuredCount >= 3:
		return extraction.StructureStructured
	case semiCount >= 2 || structuredCount >= 1:
		return extraction.StructureSemiStructured
	default:
		return extraction.StructureUnstructured
	}
}
