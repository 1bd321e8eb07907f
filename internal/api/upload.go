// ABOUTME: Multipart intake for POST /api/threads file attachments
// ABOUTME: Files are screened by extension and saved under the configured upload dir only

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/tallkotte/internal/store"
)

// DefaultMaxUpload caps a thread request body when Options leaves it unset.
const DefaultMaxUpload = 32 << 20

// uploadMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const uploadMemory = 1 << 20

// allowedExtensions are the file types accepted as thread context.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFilename strips any directory part from name and replaces everything
// outside letters, digits, dot, dash and underscore. It returns "" when
// nothing usable is left.
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	return strings.TrimLeft(name, "._")
}

// threadForm is a parsed multipart thread request.
type threadForm struct {
	paths       []string
	initMessage string
	activate    bool
	// dir holds the saved files; the caller removes it.
	dir string
}

// parseThreadForm reads the multipart body of r. Every "file" part is checked
// before any is written, then saved into a fresh directory under s.uploadDir.
func (s *Server) parseThreadForm(w http.ResponseWriter, r *http.Request) (threadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return threadForm{}, err
		}
		return threadForm{}, fmt.Errorf("%w: invalid multipart form", store.ErrValidation)
	}
	defer r.MultipartForm.RemoveAll()

	form := threadForm{
		initMessage: r.FormValue("init_message"),
		activate:    true,
	}
	if v := r.FormValue("activate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return threadForm{}, fmt.Errorf("%w: activate must be a boolean", store.ErrValidation)
		}
		form.activate = b
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		return form, nil
	}
	names := make([]string, len(headers))
	for i, fh := range headers {
		name := safeFilename(fh.Filename)
		if name == "" {
			return threadForm{}, fmt.Errorf("%w: file name %q is not usable", store.ErrValidation, fh.Filename)
		}
		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			return threadForm{}, fmt.Errorf("%w: file type of %q is not allowed", store.ErrValidation, fh.Filename)
		}
		names[i] = name
	}

	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return threadForm{}, fmt.Errorf("preparing upload dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.uploadDir, "upload-")
	if err != nil {
		return threadForm{}, fmt.Errorf("preparing upload dir: %w", err)
	}
	form.dir = dir

	for i, fh := range headers {
		// The index prefix keeps two parts with the same name apart.
		path := filepath.Join(dir, fmt.Sprintf("%d-%s", i, names[i]))
		if err := saveUpload(fh, path); err != nil {
			os.RemoveAll(dir)
			return threadForm{}, fmt.Errorf("saving %q: %w", names[i], err)
		}
		form.paths = append(form.paths, path)
	}
	return form, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
