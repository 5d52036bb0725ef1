package transport

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/scripthost/internal/execsvc"
	"github.com/kandev/scripthost/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)

	scriptDir := t.TempDir()
	sup := execsvc.NewSupervisor(24*time.Hour, 0, log)
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	return NewServer(scriptDir, sup, log), scriptDir
}

func writeExecutableScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\n"+body+"\n"), 0o755))
}

// TestStartScript_ContiguousArgsOnly verifies that a gap in the arg0..argN-1
// sequence (here, arg0 and arg2 with no arg1) is rejected as a bad request
// rather than silently dropping the out-of-sequence field.
func TestStartScript_ContiguousArgsOnly(t *testing.T) {
	srv, scriptDir := testServer(t)
	writeExecutableScript(t, scriptDir, "echoer.sh", "echo hi")

	form := url.Values{}
	form.Set("arg0", "first")
	form.Set("arg2", "stray")

	req := httptest.NewRequest(http.MethodPost, "/scripts/echoer.sh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestStartScript_MultipartEmptyFilenameIsFileUpload covers the boundary
// case where a multipart part carries a filename parameter that is present
// but empty: it must still be treated as a file upload materialized under
// the "no_name" fallback name, not as an ordinary empty-string value.
func TestStartScript_MultipartEmptyFilenameIsFileUpload(t *testing.T) {
	srv, scriptDir := testServer(t)
	writeExecutableScript(t, scriptDir, "consume.sh", `cat "$1"`)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="arg0"; filename=""`)
	header.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/scripts/consume.sh", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := rec.Body.String()
	require.NotEmpty(t, id)

	rs := srv.sup.Get(id)
	require.NotNil(t, rs)
	require.Len(t, rs.Args, 1)
	assert.True(t, strings.HasSuffix(rs.Args[0], string(filepath.Separator)+"no_name"))

	data, err := os.ReadFile(rs.Args[0])
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

// TestGetProgress_MalformedSinceIsBadRequest covers short, long, empty, and
// non-JSON `since` values, none of which are valid 2-element witnesses:
// decoding straight into a [2]float64 would silently zero-pad or truncate
// the short/long cases instead of rejecting them.
func TestGetProgress_MalformedSinceIsBadRequest(t *testing.T) {
	srv, scriptDir := testServer(t)
	writeExecutableScript(t, scriptDir, "sleeper.sh", "sleep 5")

	req := httptest.NewRequest(http.MethodPost, "/scripts/sleeper.sh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Body.String()
	require.NotEmpty(t, id)

	for _, since := range []string{"[1,2,3]", "[5]", "[]", "not-json"} {
		req := httptest.NewRequest(http.MethodGet, "/running/"+id+"/progress?since="+url.QueryEscape(since), nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "since=%s", since)
	}

	_, err := srv.sup.Get(id).Kill(context.Background())
	require.NoError(t, err)
}
