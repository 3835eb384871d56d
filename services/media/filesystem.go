package mediasvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

// FilesystemStore keeps images below a root directory.
// Every image is re-encoded as JPEG, auto-oriented and downscaled to fit the configured dimension.
type FilesystemStore struct {
	root         string
	maxFileSize  int64
	maxDimension int
	quality      int
}

var _ core.ImageStore = (*FilesystemStore)(nil)

func NewFilesystemStore(conf *core.Config) (*FilesystemStore, error) {
	root, err := filepath.Abs(conf.Media.Root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving media root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media root")
	}
	quality := conf.Media.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &FilesystemStore{
		root:         root,
		maxFileSize:  conf.Media.MaxFileSize,
		maxDimension: conf.Media.MaxDimension,
		quality:      quality,
	}, nil
}

func (s *FilesystemStore) path(ref string) (string, error) {
	clean, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.root, filepath.FromSlash(clean))
	if !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", errInvalidRef
	}
	return p, nil
}

func (s *FilesystemStore) ValidateImageFile(up core.Upload) error {
	_, err := validateImage(up, s.maxFileSize)
	return err
}

func (s *FilesystemStore) SaveImageFile(ctx context.Context, up core.Upload, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", core.NewValidationError(errInvalidImage)
	}
	if s.maxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > s.maxDimension || b.Dy() > s.maxDimension {
			img = imaging.Fit(img, s.maxDimension, s.maxDimension, imaging.Lanczos)
		}
	}

	ref := newRef(folder, ".jpg")
	dst, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "creating folder")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "encoding image")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "writing image")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Wrap(err, "moving image")
	}
	return ref, nil
}

// DeleteImageFile removes ref. Deleting a missing image is not an error.
func (s *FilesystemStore) DeleteImageFile(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting %s", ref)
	}
	return nil
}

func (s *FilesystemStore) OpenImageFile(ctx context.Context, ref string) (io.ReadCloser, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, core.NewNotFoundError("image")
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("image")
		}
		return nil, errors.Wrapf(err, "opening %s", ref)
	}
	return f, nil
}
