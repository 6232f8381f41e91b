package extraction

import (
	"fmt"
	"strings"
)

// maxPromptChars caps how much document text is sent to the model.
const maxPromptChars = 50000

func buildExtractionPrompt(text string, docType DocumentType, structType StructureType) string {
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	return fmt.Sprintf(`You are an expert document analyst specializing in extracting structured information from %s documents.

Analyze the following document (which is %s) and extract the following entities:

1. STAKEHOLDERS: People or organizations involved
   - Extract: name, type (client/vendor/contact/signatory/project_manager), role, organization, email, phone
   - Include confidence scores (0.0-1.0) for each extraction

2. DELIVERABLES: Products, services, or outcomes to be delivered
   - Extract: name, description, acceptance_criteria, milestone_id, dependencies
   - Include confidence scores

3. DEADLINES: Important dates and milestones
   - Extract: type (start/end/milestone/payment/review), date, description, associated_deliverable, is_firm
   - Include confidence scores

4. FINANCIAL: Financial terms and amounts
   - Extract: type (total_value/payment/penalty/milestone_payment), amount, currency, description, payment_terms, due_date
   - Include confidence scores

Return ONLY a valid JSON object with this exact structure:
{
    "overall_confidence": <float 0.0-1.0>,
    "stakeholders": [
        {
            "name": "<string>",
            "stakeholder_type": "<client|vendor|contact|signatory|project_manager>",
            "role": "<string or null>",
            "organization": "<string or null>",
            "email": "<string or null>",
            "phone": "<string or null>",
            "confidence": <float 0.0-1.0>,
            "source_text": "<excerpt from document>"
        }
    ],
    "deliverables": [
        {
            "deliverable_name": "<string>",
            "description": "<string or null>",
            "acceptance_criteria": "<string or null>",
            "milestone_id": "<string or null>",
            "dependencies": ["<string>"],
            "confidence": <float 0.0-1.0>,
            "source_text": "<excerpt from document>"
        }
    ],
    "deadlines": [
        {
            "deadline_type": "<start|end|milestone|payment|review>",
            "deadline_date": "<YYYY-MM-DD>",
            "description": "<string or null>",
            "associated_deliverable": "<string or null>",
            "is_firm": <boolean>,
            "confidence": <float 0.0-1.0>,
            "source_text": "<excerpt from document>"
        }
    ],
    "financials": [
        {
            "financial_type": "<total_value|payment|penalty|milestone_payment>",
            "amount": <float or null>,
            "currency": "<string, default USD>",
            "description": "<string or null>",
            "payment_terms": "<string or null>",
            "due_date": "<YYYY-MM-DD or null>",
            "confidence": <float 0.0-1.0>,
            "source_text": "<excerpt from document>"
        }
    ]
}

Document text (first 50000 characters):
%s

Extract entities and return ONLY the JSON object:`, docType, structType, text)
}

// stripMarkdownFences unwraps a JSON payload the model wrapped in a
// markdown code block.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "```json") {
		s = strings.SplitN(s, "```json", 2)[1]
		s = strings.SplitN(s, "```", 2)[0]
	} else if strings.Contains(s, "```") {
		parts := strings.Split(s, "```")
		if len(parts) > 1 {
			s = parts[1]
		}
	}
	return strings.TrimSpace(s)
}

// normalizeRaw guarantees the backend payload shape: all four entity
// lists present, overall_confidence clamped, and every entity carrying
// a clamped confidence (defaulting to the overall score).
func normalizeRaw(raw map[string]interface{}) map[string]interface{} {
	overall := 0.5
	if v, ok := raw["overall_confidence"].(float64); ok {
		overall = clamp(v)
	}

	normalized := map[string]interface{}{
		"overall_confidence": overall,
	}

	for _, key := range []string{"stakeholders", "deliverables", "deadlines", "financials"} {
		list, ok := raw[key].([]interface{})
		if !ok {
			normalized[key] = []interface{}{}
			continue
		}
		for _, item := range list {
			entity, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if c, ok := entity["confidence"].(float64); ok {
				entity["confidence"] = clamp(c)
			} else {
				entity["confidence"] = overall
			}
		}
		normalized[key] = list
	}

	return normalized
}
