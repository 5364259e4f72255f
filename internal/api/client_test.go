package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrap(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	}))
}

func wrapError(t *testing.T, w http.ResponseWriter, status int, code, message string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	}))
}

func TestUploadSendsMultipartAndUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/upload_file", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "pdf bytes", string(body))

		wrap(t, w, UploadResult{
			FileURL:          "/uploads/abc/report.pdf",
			OriginalFilename: "report.pdf",
			GeminiFileRef:    "abc/report.pdf",
		})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Upload(context.Background(), "report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc/report.pdf", res.FileURL)
	assert.Equal(t, "report.pdf", res.OriginalFilename)
	assert.Equal(t, "abc/report.pdf", res.GeminiFileRef)
}

func TestErrorEnvelopeSurfacesCodeAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapError(t, w, http.StatusBadRequest, "INVALID_REQUEST", "file is required")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Upload(context.Background(), "x.txt", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REQUEST")
	assert.Contains(t, err.Error(), "file is required")
}

func TestCheckProgressEscapesRoomID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/check_progress/room%2Fone", r.URL.RawPath)
		wrap(t, w, ProgressResult{Progress: "話題を変えてみましょう"})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).CheckProgress(context.Background(), "room/one")
	require.NoError(t, err)
	assert.Equal(t, "話題を変えてみましょう", res.Progress)
}

func TestExportProposalsReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/download_proposals_word", r.URL.Path)
		var req ExportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "公園の活用", req.Topic)

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("binary document"))
	}))
	defer srv.Close()

	data, err := NewClient(srv.URL).ExportProposals(context.Background(), "公園の活用", nil)
	require.NoError(t, err)
	assert.Equal(t, "binary document", string(data))
}

func TestExportProposalsNonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ExportProposals(context.Background(), "t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestListAndCreateRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/rooms":
			wrap(t, w, []RoomInfo{
				{RoomID: "a", Topic: "ごみ問題", Status: "active"},
				{RoomID: "b", Topic: "交通", Status: "finished"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/rooms":
			var req CreateRoomRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			wrap(t, w, RoomInfo{RoomID: req.RoomID, Topic: req.Topic, Status: "active"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "ごみ問題", rooms[0].Topic)

	created, err := c.CreateRoom(context.Background(), "c", "新しい議題")
	require.NoError(t, err)
	assert.Equal(t, "c", created.RoomID)
	assert.Equal(t, "active", created.Status)
}
