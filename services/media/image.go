package mediasvc

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp" // registers the webp decoder

	"github.com/trezcool/abiboard/core"
)

const sniffLen = 512

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var (
	errInvalidImage = errors.New("Die Datei ist kein gültiges Bild.")
	errImageType    = errors.New("Nur JPEG-, PNG-, GIF- und WebP-Bilder sind erlaubt.")
	errEmptyFile    = errors.New("Die Datei ist leer.")
	errInvalidRef   = errors.New("invalid image reference")
)

// validateImage checks size, sniffed content type and image header of up. It returns the content type.
func validateImage(up core.Upload, maxSize int64) (string, error) {
	if up.Size == 0 {
		return "", core.NewValidationError(errEmptyFile)
	}
	if maxSize > 0 && up.Size > maxSize {
		return "", core.NewValidationError(fmt.Errorf("Die Datei ist zu groß (höchstens %s).", humanSize(maxSize)))
	}

	f, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "reading upload")
	}
	ct := http.DetectContentType(head)
	if !allowedTypes[ct] {
		return "", core.NewValidationError(errImageType)
	}
	if _, _, err := image.DecodeConfig(br); err != nil {
		return "", core.NewValidationError(errInvalidImage)
	}
	return ct, nil
}

// newRef returns a fresh reference in folder: <folder>/<yyyymmdd>-<uuid><ext>.
func newRef(folder, ext string) string {
	name := fmt.Sprintf("%s-%s%s", time.Now().UTC().Format("20060102"), uuid.New().String(), ext)
	return path.Join(cleanFolder(folder), name)
}

// cleanRef normalizes ref and rejects anything that could leave the store root.
func cleanRef(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "\\") || strings.Contains(ref, "\x00") {
		return "", errInvalidRef
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", errInvalidRef
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+ref), "/")
	if clean == "" {
		return "", errInvalidRef
	}
	return clean, nil
}

func cleanFolder(folder string) string {
	parts := strings.Split(folder, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." && p != ".." {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d KB", n>>10)
}
