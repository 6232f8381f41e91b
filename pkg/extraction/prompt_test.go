package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExtractionPrompt(t *testing.T) {
	prompt := buildExtractionPrompt("The vendor shall deliver...", DocumentTypeContract, StructureSemiStructured)

	assert.Contains(t, prompt, "from contract documents")
	assert.Contains(t, prompt, "which is semi_structured")
	assert.Contains(t, prompt, "The vendor shall deliver...")
	assert.Contains(t, prompt, `"overall_confidence"`)
}

func TestBuildExtractionPromptCapsText(t *testing.T) {
	long := strings.Repeat("a", maxPromptChars+1000)
	prompt := buildExtractionPrompt(long, DocumentTypeOther, StructureUnstructured)
	assert.Contains(t, prompt, strings.Repeat("a", maxPromptChars))
	assert.NotContains(t, prompt, strings.Repeat("a", maxPromptChars+1))
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "Here you go:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdownFences(tt.in))
		})
	}
}

func TestNormalizeRaw(t *testing.T) {
	t.Run("fills missing keys", func(t *testing.T) {
		got := normalizeRaw(map[string]interface{}{})
		assert.Equal(t, 0.5, got["overall_confidence"])
		for _, key := range []string{"stakeholders", "deliverables", "deadlines", "financials"} {
			assert.Equal(t, []interface{}{}, got[key])
		}
	})

	t.Run("clamps overall confidence", func(t *testing.T) {
		got := normalizeRaw(map[string]interface{}{"overall_confidence": 2.5})
		assert.Equal(t, 1.0, got["overall_confidence"])
	})

	t.Run("defaults entity confidence to overall", func(t *testing.T) {
		got := normalizeRaw(map[string]interface{}{
			"overall_confidence": 0.8,
			"stakeholders": []interface{}{
				map[string]interface{}{"name": "A"},
				map[string]interface{}{"name": "B", "confidence": 1.5},
			},
		})
		list := got["stakeholders"].([]interface{})
		require.Len(t, list, 2)
		assert.Equal(t, 0.8, list[0].(map[string]interface{})["confidence"])
		assert.Equal(t, 1.0, list[1].(map[string]interface{})["confidence"])
	})

	t.Run("replaces wrong-typed lists", func(t *testing.T) {
		got := normalizeRaw(map[string]interface{}{"deadlines": "none"})
		assert.Equal(t, []interface{}{}, got["deadlines"])
	})
}
