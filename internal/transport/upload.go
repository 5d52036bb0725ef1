package transport

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kandev/scripthost/internal/apperrors"
)

const maxUploadMemory = 32 << 20

// collectArguments assembles the positional argument list for starting
// scriptBasename from the request body: form values become string
// arguments directly, multipart file parts are materialized into a
// freshly allocated scratch directory and the resulting path becomes the
// argument's value. Names are consumed as arg0, arg1, ... until the first
// gap; any field left over after that is a bad request.
//
// Multipart parts are read with the low-level multipart.Reader rather than
// ParseMultipartForm, because Part.FileName() (and so form.File vs.
// form.Value) cannot distinguish a part whose filename parameter is simply
// absent from one where it is present but empty — collapsing exactly the
// file-vs-value boundary this format needs. Reading the raw
// Content-Disposition parameters keeps that distinction.
//
// On error, any scratch directories already created are the caller's
// responsibility to remove — they are still returned alongside the error
// so callers can release them.
func collectArguments(c *gin.Context, scriptBasename string) ([]string, []string, error) {
	values := map[string]string{}
	filePaths := map[string]string{}
	var scratchDirs []string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		mr, err := c.Request.MultipartReader()
		if err != nil {
			return nil, nil, apperrors.BadRequest("malformed multipart body: " + err.Error())
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, scratchDirs, apperrors.BadRequest("malformed multipart body: " + err.Error())
			}

			name := part.FormName()
			if name == "" {
				part.Close()
				continue
			}

			if filename, isFile := partFilename(part); isFile {
				path, dir, ferr := materializeUpload(scriptBasename, filename, part)
				part.Close()
				if dir != "" {
					scratchDirs = append(scratchDirs, dir)
				}
				if ferr != nil {
					return nil, scratchDirs, apperrors.Internal("failed to materialize uploaded file", ferr)
				}
				filePaths[name] = path
				continue
			}

			data, rerr := io.ReadAll(part)
			part.Close()
			if rerr != nil {
				return nil, scratchDirs, apperrors.BadRequest("malformed multipart body: " + rerr.Error())
			}
			values[name] = string(data)
		}
	} else {
		if err := c.Request.ParseForm(); err != nil {
			return nil, nil, apperrors.BadRequest("malformed form body: " + err.Error())
		}
		for k, vs := range c.Request.PostForm {
			if len(vs) > 0 {
				values[k] = vs[0]
			}
		}
	}

	var args []string
	for i := 0; ; i++ {
		name := fmt.Sprintf("arg%d", i)

		if path, ok := filePaths[name]; ok {
			delete(filePaths, name)
			args = append(args, path)
			continue
		}

		if v, ok := values[name]; ok {
			delete(values, name)
			args = append(args, v)
			continue
		}

		break
	}

	if len(values) > 0 || len(filePaths) > 0 {
		return args, scratchDirs, apperrors.BadRequest("argument names must be a contiguous arg0..argN-1 sequence")
	}

	return args, scratchDirs, nil
}

// partFilename reports the part's filename Content-Disposition parameter
// and whether that parameter was present at all (as opposed to absent,
// which part.FileName() cannot tell apart from "present but empty").
func partFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	filename, ok := params["filename"]
	return filename, ok
}

// materializeUpload writes one uploaded file part into a newly allocated
// scratch directory named after the target script, falling back to
// "no_name" for an empty filename.
func materializeUpload(scriptBasename, filename string, r io.Reader) (path string, dir string, err error) {
	dir, err = os.MkdirTemp("", scriptBasename+"_")
	if err != nil {
		return "", "", err
	}

	base := filepath.Base(filename)
	if filename == "" || base == "." || base == string(filepath.Separator) {
		base = "no_name"
	}
	dstPath := filepath.Join(dir, base)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", dir, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", dir, err
	}

	return dstPath, dir, nil
}

func removeScratchDirs(dirs []string) {
	for _, d := range dirs {
		_ = os.RemoveAll(d)
	}
}
