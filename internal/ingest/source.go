package ingest

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"sync"
)

// Source is a user-selected file that has not been read yet. Size is the
// declared size and may under-report.
type Source struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func FromBytes(name, mimeType string, data []byte) Source {
	return Source{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func FromFileHeader(fh *multipart.FileHeader) Source {
	return Source{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

var errAlreadyOpened = errors.New("source already opened")

// FromReader wraps a one-shot stream. A size <= 0 means unknown.
func FromReader(name, mimeType string, size int64, r io.Reader) Source {
	var once sync.Once
	return Source{
		Name:     name,
		MimeType: mimeType,
		Size:     size,
		Open: func() (io.ReadCloser, error) {
			opened := false
			once.Do(func() { opened = true })
			if !opened {
				return nil, errAlreadyOpened
			}
			if rc, ok := r.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(r), nil
		},
	}
}

// FormatLabel is the short badge shown next to an attachment.
func FormatLabel(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "pdf"):
		return "PDF"
	case strings.HasPrefix(mt, "image/"):
		return "IMAGE"
	case strings.HasPrefix(mt, "text/"):
		return "TXT"
	default:
		return "FILE"
	}
}
