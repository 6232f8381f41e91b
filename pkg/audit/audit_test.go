package audit

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedLogger() (*Logger, *test.Hook) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	return newLoggerWith(base, "test"), hook
}

func TestLogCarriesStructuredFields(t *testing.T) {
	audit, hook := capturedLogger()

	audit.Upload("doc-1", "sow.pdf", "alice", 2048, "application/pdf")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "document.uploaded", entry.Data["event_type"])
	assert.Equal(t, "document-processing", entry.Data["service"])
	assert.Equal(t, "test", entry.Data["environment"])
	assert.Equal(t, "doc-1", entry.Data["document_id"])
	assert.Equal(t, "alice", entry.Data["user_id"])

	details := entry.Data["details"].(map[string]interface{})
	assert.Equal(t, "sow.pdf", details["filename"])
	assert.Equal(t, 2048, details["file_size"])
}

func TestFailureEventsUseErrorLevel(t *testing.T) {
	audit, hook := capturedLogger()

	audit.ProcessingFailed("doc-2", "quota exceeded", "gemini")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "processing.failed", entry.Data["event_type"])
}

func TestOptionalFieldsOmitted(t *testing.T) {
	audit, hook := capturedLogger()

	audit.Log(EventServiceStarted, "", "", nil, logrus.InfoLevel)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.NotContains(t, entry.Data, "document_id")
	assert.NotContains(t, entry.Data, "user_id")
	assert.NotContains(t, entry.Data, "details")
}

func TestReviewFlaggedWarns(t *testing.T) {
	audit, hook := capturedLogger()

	audit.ReviewFlagged("doc-3", "low_confidence", "high")

	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	details := entry.Data["details"].(map[string]interface{})
	assert.Equal(t, "low_confidence", details["reason"])
	assert.Equal(t, "high", details["severity_level"])
}
