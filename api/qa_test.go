package api

import (
	"net/http"
	"testing"

	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQAEndpoint(t *testing.T) {
	env := setupTestEnv(t, "The report covers three quarters of revenue data.")

	question := "What period does the quarterly report cover in its revenue tables?"
	uploadDocument(t, env, "report.txt", testParagraphs(question))

	w, resp := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": question,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, question, data["question"])
	assert.Equal(t, "The report covers three quarters of revenue data.", data["answer"])

	sources := data["sources"].([]interface{})
	require.NotEmpty(t, sources)
	source := sources[0].(map[string]interface{})
	assert.Equal(t, float64(1), source["page"])
	assert.NotEmpty(t, source["text"])
}

// Without a file id the question is answered against the currently
// indexed document.
func TestQADefaultsToActiveDocument(t *testing.T) {
	env := setupTestEnv(t, "answered from the active document")

	question := "Which rollout phases does the revised migration plan define for the team?"
	fileID := uploadDocument(t, env, "plan.txt", testParagraphs(question))

	_, resp := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": question,
	})
	require.Equal(t, 0, resp.Code)

	data := resp.Data.(map[string]interface{})
	sources := data["sources"].([]interface{})
	require.NotEmpty(t, sources)
	assert.Equal(t, fileID, sources[0].(map[string]interface{})["file_id"])
}

func TestQAMissingQuestion(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// With nothing relevant indexed the endpoint returns the fallback
// answer and no citations.
func TestQANoRelevantContent(t *testing.T) {
	env := setupTestEnv(t, "should never be used")

	w, resp := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": "Is there anything in the index at all?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, llm.NoAnswerFallback, data["answer"])
	assert.Empty(t, data["sources"])
	assert.Empty(t, env.LLM.prompts, "the model should not be called without context")
}

func TestQAUnknownSession(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   "Does this session exist?",
		"session_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
