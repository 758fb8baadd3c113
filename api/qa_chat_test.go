package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createSession starts a chat session through the API.
func createSession(t *testing.T, env *testEnv, title string) string {
	t.Helper()

	w, resp := doRequest(t, env, http.MethodPost, "/api/chats", map[string]interface{}{
		"title": title,
	})
	require.Equal(t, http.StatusOK, w.Code)

	sessionID := resp.Data.(map[string]interface{})["session_id"].(string)
	require.NotEmpty(t, sessionID)
	return sessionID
}

// A question with a session id is answered and both sides of the
// exchange are persisted with citations.
func TestQAInSessionPersistsExchange(t *testing.T) {
	env := setupTestEnv(t, "The pipeline parses, chunks and embeds the upload.")

	question := "How does the indexing pipeline process an uploaded file end to end?"
	uploadDocument(t, env, "pipeline.txt", testParagraphs(question))

	sessionID := createSession(t, env, "pipeline chat")

	w, resp := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   question,
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, "The pipeline parses, chunks and embeds the upload.", data["answer"])

	// Both messages are stored, the assistant one with its sources.
	_, histResp := doRequest(t, env, http.MethodGet, "/api/chats/"+sessionID, nil)
	hist := histResp.Data.(map[string]interface{})
	messages := hist["messages"].([]interface{})
	require.Len(t, messages, 2)

	userMsg := messages[0].(map[string]interface{})
	assert.Equal(t, "user", userMsg["role"])
	assert.Equal(t, question, userMsg["content"])

	assistantMsg := messages[1].(map[string]interface{})
	assert.Equal(t, "assistant", assistantMsg["role"])
	sources := assistantMsg["sources"].([]interface{})
	require.NotEmpty(t, sources)
	assert.Equal(t, float64(1), sources[0].(map[string]interface{})["page"])
}

// A follow-up question is condensed against the stored history before
// retrieval.
func TestQAFollowUpUsesHistory(t *testing.T) {
	opening := "Tell me about the document indexing pipeline and what it does to uploads."
	standalone := "What are the steps of the document indexing pipeline in this service?"
	env := setupTestEnv(t,
		"It turns the upload into searchable chunks.", // first answer
		standalone, // condense reply
		"It validates, parses, chunks and embeds.", // follow-up answer
	)

	uploadDocument(t, env, "steps.txt", testParagraphs(opening, standalone))

	sessionID := createSession(t, env, "follow-ups")

	// First turn seeds the history.
	_, resp := doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   opening,
		"session_id": sessionID,
	})
	require.Equal(t, 0, resp.Code)

	// Second turn is a follow-up that only makes sense with history.
	_, resp = doRequest(t, env, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   "What are its steps?",
		"session_id": sessionID,
	})
	require.Equal(t, 0, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "It validates, parses, chunks and embeds.", data["answer"])
	require.NotEmpty(t, data["sources"])

	// The condensation prompt carried the history.
	require.GreaterOrEqual(t, len(env.LLM.prompts), 3)
	assert.Contains(t, env.LLM.prompts[1], "Standalone question:")
	assert.Contains(t, env.LLM.prompts[1], opening)

	// Four messages stored after two turns.
	_, histResp := doRequest(t, env, http.MethodGet, "/api/chats/"+sessionID, nil)
	messages := histResp.Data.(map[string]interface{})["messages"].([]interface{})
	assert.Len(t, messages, 4)
}
