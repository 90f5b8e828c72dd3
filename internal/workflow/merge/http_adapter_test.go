package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/pkg/errors"
)

func writePageFiles(t *testing.T, count int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("page_%d.pptx", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("PK\x03\x04page-%d", i)), 0o644))
		paths = append(paths, path)
	}
	return paths
}

func TestMergeUploadsPagesInOrder(t *testing.T) {
	var gotNames []string
	var gotField string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		files := r.MultipartForm.File["file"]
		for _, fh := range files {
			gotField = "file"
			gotNames = append(gotNames, fh.Filename)
		}
		_, _ = w.Write([]byte("merged-deck-bytes"))
	}))
	defer server.Close()

	m := NewHTTPMerger(server.URL, time.Second)
	deck, statuses, err := m.Merge(context.Background(), writePageFiles(t, 3))
	require.NoError(t, err)

	assert.Equal(t, []byte("merged-deck-bytes"), deck)
	assert.Equal(t, "file", gotField)
	assert.Equal(t, []string{"page_1.pptx", "page_2.pptx", "page_3.pptx"}, gotNames)

	// 报告缺失时全部视为成功
	require.Len(t, statuses, 3)
	for i, s := range statuses {
		assert.Equal(t, i+1, s.PageNumber)
		assert.True(t, s.Success)
	}
}

func TestMergeParsesReportHeader(t *testing.T) {
	report, err := json.Marshal([]entity.PageStatus{
		{PageNumber: 1, Success: true},
		{PageNumber: 2, Success: false, Error: "corrupt slide"},
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Merge-Report", string(report))
		_, _ = w.Write([]byte("deck"))
	}))
	defer server.Close()

	m := NewHTTPMerger(server.URL, time.Second)
	_, statuses, err := m.Merge(context.Background(), writePageFiles(t, 2))
	require.NoError(t, err)

	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Success)
	assert.False(t, statuses[1].Success)
	assert.Equal(t, "corrupt slide", statuses[1].Error)
}

func TestMergeMalformedReportAssumesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Merge-Report", "{{{not json")
		_, _ = w.Write([]byte("deck"))
	}))
	defer server.Close()

	m := NewHTTPMerger(server.URL, time.Second)
	_, statuses, err := m.Merge(context.Background(), writePageFiles(t, 2))
	require.NoError(t, err)

	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Success)
	assert.True(t, statuses[1].Success)
}

func TestMergeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "merge exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	m := NewHTTPMerger(server.URL, time.Second)
	_, _, err := m.Merge(context.Background(), writePageFiles(t, 1))
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	assert.Equal(t, errors.CodeMergeFailed, appErr.Code)
	assert.Contains(t, appErr.Error(), "500")
}

func TestMergeEmptyResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewHTTPMerger(server.URL, time.Second)
	_, _, err := m.Merge(context.Background(), writePageFiles(t, 1))
	require.Error(t, err)
	assert.Equal(t, errors.CodeMergeFailed, errors.AsAppError(err).Code)
}

func TestMergeNoPages(t *testing.T) {
	m := NewHTTPMerger("http://localhost:1", time.Second)
	_, _, err := m.Merge(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMergeFailed, errors.AsAppError(err).Code)
}

func TestMergeUnreachableService(t *testing.T) {
	m := NewHTTPMerger("http://127.0.0.1:1", 200*time.Millisecond)
	_, _, err := m.Merge(context.Background(), writePageFiles(t, 1))
	require.Error(t, err)
	assert.Equal(t, errors.CodeMergeFailed, errors.AsAppError(err).Code)
}

func TestMergeMissingPageFile(t *testing.T) {
	m := NewHTTPMerger("http://localhost:1", time.Second)
	_, _, err := m.Merge(context.Background(), []string{filepath.Join(t.TempDir(), "absent.pptx")})
	assert.Error(t, err)
}
