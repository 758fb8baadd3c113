package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteDocumentEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	fileID := uploadDocument(t, env, "todelete.txt", testParagraphs(
		"A single paragraph that is indexed and then removed again through the API.",
	))

	count, err := env.VectorDB.Count()
	require.NoError(t, err)
	require.Greater(t, count, 0)

	w, resp := doRequest(t, env, http.MethodDelete, "/api/documents/"+fileID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, fileID, data["file_id"])

	// Vectors and the status record are gone.
	count, err = env.VectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	w, _ = doRequest(t, env, http.MethodGet, "/api/documents/"+fileID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadWithTags(t *testing.T) {
	env := setupTestEnv(t)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "tagged.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("A tagged document with a single short paragraph of indexable content."))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("tags", "report,finance"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	fileID := resp.Data.(map[string]interface{})["file_id"].(string)
	waitForDocument(t, env, fileID)

	doc, err := env.DocumentService.GetDocument(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, "report,finance", doc.Tags)

	// Tags show up in the list.
	_, listResp := doRequest(t, env, http.MethodGet, "/api/documents", nil)
	docs := listResp.Data.(map[string]interface{})["documents"].([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, "report,finance", docs[0].(map[string]interface{})["tags"])
}

func TestListDocumentsFields(t *testing.T) {
	env := setupTestEnv(t)

	fileID := uploadDocument(t, env, "listed.md", testParagraphs(
		"The only indexed document shows up in the list with its page and segment counts.",
	))

	_, resp := doRequest(t, env, http.MethodGet, "/api/documents", nil)
	docs := resp.Data.(map[string]interface{})["documents"].([]interface{})
	require.Len(t, docs, 1)

	entry := docs[0].(map[string]interface{})
	assert.Equal(t, fileID, entry["file_id"])
	assert.Equal(t, "listed.md", entry["filename"])
	assert.Equal(t, "completed", entry["status"])
	assert.Equal(t, float64(1), entry["pages"])
	assert.Equal(t, float64(1), entry["segments"])
}
