package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

var ErrUploadTooLarge = serrors.NewError("UPLOAD_TOO_LARGE", "uploaded file is too large", "Errors.UploadTooLarge")

var allowedExtensions = map[string]struct{}{
	".xlsx": {},
	".xls":  {},
	".xlsm": {},
}

// OOXML workbooks sniff as zip descendants, BIFF workbooks as OLE2.
var allowedContainers = map[string]struct{}{
	"application/zip":           {},
	"application/x-ole-storage": {},
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type UploadOptions struct {
	Dir string
	// MaxSize caps the request body; 0 disables the cap.
	MaxSize   int64
	MaxMemory int64
}

type upload struct {
	Path         string
	OriginalName string
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	safe := strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if safe == "" {
		return "upload"
	}
	return safe
}

// saveUpload stores the multipart "file" field under opts.Dir. The caller owns
// the stored file.
func saveUpload(w http.ResponseWriter, r *http.Request, opts UploadOptions) (*upload, error) {
	if opts.MaxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxSize)
	}
	if err := r.ParseMultipartForm(opts.MaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, tooLarge.Limit)
		}
		return nil, serrors.Validation("invalid multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, serrors.Validation("file is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, serrors.Validation("unsupported file extension %q", ext)
	}
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, serrors.Validation("unreadable upload: %v", err)
	}
	if !isSpreadsheetContainer(mtype) {
		return nil, serrors.Validation("%s is not a spreadsheet (detected %s)", header.Filename, mtype.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	path := filepath.Join(opts.Dir, fmt.Sprintf("%d__%s", time.Now().UnixMilli(), sanitizeFileName(header.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return &upload{Path: path, OriginalName: filepath.Base(header.Filename)}, nil
}

func isSpreadsheetContainer(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if _, ok := allowedContainers[m.String()]; ok {
			return true
		}
	}
	return false
}
