package core

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
)

// Upload is a file received from a client, not yet stored.
type Upload struct {
	Filename string
	Size     int64
	open     func() (io.ReadCloser, error)
}

func (up Upload) Open() (io.ReadCloser, error) {
	return up.open()
}

func UploadFromFileHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		open:     func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func UploadFromBytes(filename string, content []byte) Upload {
	return Upload{
		Filename: filename,
		Size:     int64(len(content)),
		open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(content)), nil },
	}
}

// ImageStore stores uploaded images and hands out references to them.
// Only references are persisted by the application, never raw bytes.
type ImageStore interface {
	// ValidateImageFile returns a *ValidationError if up is not an acceptable image.
	ValidateImageFile(up Upload) error
	SaveImageFile(ctx context.Context, up Upload, folder string) (string, error)
	DeleteImageFile(ctx context.Context, ref string) error
	OpenImageFile(ctx context.Context, ref string) (io.ReadCloser, error)
}
