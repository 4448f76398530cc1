package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/jobmail/internal/core"
)

func TestParseStrictJSON(t *testing.T) {
	text := `{
		"relevant": true,
		"reason": "job interview",
		"applications": [
			{"company": "Acme", "job_title": "Backend Engineer", "status": "interview", "date": "2024-03-02"},
			{"company": "Globex", "job_title": "SRE", "status": "applied"}
		]
	}`
	records := ParseRecords(text)
	require.Len(t, records, 2)
	assert.Equal(t, "Acme", records[0].Company)
	assert.Equal(t, "Backend Engineer", records[0].Title)
	assert.Equal(t, core.StatusInterview, records[0].Status)
	assert.Equal(t, "2024-03-02", records[0].AppliedAt)
	assert.Equal(t, "job interview", records[0].Reason)
	assert.Equal(t, core.StatusApplied, records[1].Status)
}

func TestParseJSONWrappedInProse(t *testing.T) {
	text := "Sure! Here is the JSON you asked for:\n```json\n" +
		`{"relevant": true, "applications": [{"company": "Initech", "job_title": "TPS Analyst", "status": "rejection"}]}` +
		"\n```\nLet me know if you need anything else."
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "Initech", records[0].Company)
	assert.Equal(t, core.StatusRejected, records[0].Status)
}

func TestParseLegacyFlatResponse(t *testing.T) {
	text := `{"company": "Hooli", "job_title": "Platform Engineer", "status": "applied", "date": "2024-05-01"}`
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "Hooli", records[0].Company)
	assert.Equal(t, "Platform Engineer", records[0].Title)
	assert.Equal(t, core.StatusApplied, records[0].Status)
}

func TestParseNotRelevantYieldsNothing(t *testing.T) {
	text := `{"relevant": false, "reason": "rental application", "applications": []}`
	assert.Empty(t, ParseRecords(text))

	// relevant:false wins even when the model fills the fields anyway.
	text = `{"relevant": false, "reason": "housing", "company": "Some Realty", "status": "applied"}`
	assert.Empty(t, ParseRecords(text))
}

func TestParseBlankRecordsDropped(t *testing.T) {
	text := `{"relevant": true, "applications": [
		{"company": "", "job_title": "", "status": "applied"},
		{"company": "Acme", "job_title": "", "status": "applied"}
	]}`
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme", records[0].Company)
}

func TestParseUnknownStatusNormalized(t *testing.T) {
	text := `{"relevant": true, "applications": [{"company": "Acme", "job_title": "SWE", "status": "ghosted??"}]}`
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, core.StatusUnknown, records[0].Status)
}

func TestParseLineFallback(t *testing.T) {
	text := "I could not produce JSON, but here is what I found:\n" +
		"Company: Stark Industries\n" +
		"Job Title: Research Engineer\n" +
		"Status: \"interview scheduled\",\n" +
		"Date: 2024-06-11\n"
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "Stark Industries", records[0].Company)
	assert.Equal(t, "Research Engineer", records[0].Title)
	assert.Equal(t, core.StatusInterview, records[0].Status)
	assert.Equal(t, "2024-06-11", records[0].AppliedAt)
}

func TestParseLineFallbackRespectsRelevantFalse(t *testing.T) {
	text := "relevant: false\ncompany: Some Realty\nstatus: applied\n"
	assert.Empty(t, ParseRecords(text))
}

func TestParseGarbageYieldsNothing(t *testing.T) {
	for _, text := range []string{
		"",
		"   \n\t  ",
		"complete nonsense with no structure at all",
		"{invalid json",
		`{"applications": "oops, not an array"}`,
		"}{",
	} {
		assert.Empty(t, ParseRecords(text), "input=%q", text)
	}
}

func TestBuildPromptIncludesMessageFields(t *testing.T) {
	msg := &core.Message{Sender: "jobs@acme.com", Subject: "Interview invite"}
	prompt := BuildPrompt(msg, "body text here")
	assert.Contains(t, prompt, "jobs@acme.com")
	assert.Contains(t, prompt, "Interview invite")
	assert.Contains(t, prompt, "body text here")
	assert.Contains(t, prompt, "Respond only with the JSON object")
}
