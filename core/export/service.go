package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/user"
)

const (
	tsvName   = "steckbriefe.tsv"
	imagesDir = "bilder"
)

var fixedColumns = []string{"name", "username", "email", "status", "submitted_at", "nickname", "motto"}

var textSanitizer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// Summary is the submission state of one student.
type Summary struct {
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Status      profile.Status `json:"status"`
	SubmittedAt *time.Time     `json:"submitted_at"`
	Missing     []string       `json:"missing"`
}

type (
	ServiceInterface interface {
		Summaries(ctx context.Context) ([]Summary, error)
		WriteTSV(ctx context.Context, w io.Writer) error
		WriteZIP(ctx context.Context, w io.Writer) error
	}

	// Service reads users, fields and values to produce print exports. It never writes.
	Service struct {
		users    user.Repository
		profiles profile.Repository
		fields   field.Repository
		store    core.ImageStore
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	users user.Repository,
	profiles profile.Repository,
	fields field.Repository,
	store core.ImageStore,
	logger core.Logger,
) *Service {
	return &Service{users: users, profiles: profiles, fields: fields, store: store, logger: logger}
}

type dataset struct {
	students []user.User
	fields   []field.Field                       // active fields first, then inactive ones
	profiles map[string]profile.Profile          // by user ID
	values   map[string]map[string]profile.Value // by profile ID, then field ID
}

func (ds *dataset) profileOf(usr user.User) (profile.Profile, bool) {
	prof, ok := ds.profiles[usr.ID]
	return prof, ok
}

func (ds *dataset) valuesOf(usr user.User) map[string]profile.Value {
	if prof, ok := ds.profileOf(usr); ok {
		return ds.values[prof.ID]
	}
	return nil
}

// load reads every input of an export concurrently.
func (svc *Service) load(ctx context.Context) (*dataset, error) {
	var (
		ds     = &dataset{}
		profs  []profile.Profile
		values []profile.FieldValue
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds.students, err = svc.users.QueryUsers(gctx, &user.QueryFilter{Roles: []string{user.RoleStudent}},
			[]core.DBOrdering{{Field: "name", Ascending: true}})
		return errors.Wrap(err, "querying students")
	})
	g.Go(func() error {
		var err error
		ds.fields, err = svc.fields.QueryFields(gctx, field.QueryFilter{})
		return errors.Wrap(err, "querying fields")
	})
	g.Go(func() error {
		var err error
		profs, err = svc.profiles.QueryProfiles(gctx)
		return errors.Wrap(err, "querying profiles")
	})
	g.Go(func() error {
		var err error
		values, err = svc.profiles.QueryAllValues(gctx)
		return errors.Wrap(err, "querying values")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(ds.fields, func(i, j int) bool {
		fi, fj := ds.fields[i], ds.fields[j]
		if fi.Active != fj.Active {
			return fi.Active
		}
		return fi.Order < fj.Order
	})
	ds.profiles = make(map[string]profile.Profile, len(profs))
	for _, prof := range profs {
		ds.profiles[prof.UserID] = prof
	}
	ds.values = make(map[string]map[string]profile.Value)
	for _, v := range values {
		if ds.values[v.ProfileID] == nil {
			ds.values[v.ProfileID] = make(map[string]profile.Value)
		}
		ds.values[v.ProfileID][v.FieldID] = v.Value
	}
	return ds, nil
}

// Summaries lists every student with their submission state and missing required fields.
func (svc *Service) Summaries(ctx context.Context) ([]Summary, error) {
	ds, err := svc.load(ctx)
	if err != nil {
		return nil, err
	}

	sums := make([]Summary, 0, len(ds.students))
	for _, usr := range ds.students {
		sum := Summary{
			UserID:   usr.ID,
			Name:     usr.Name,
			Username: usr.Username,
			Email:    usr.Email,
			Status:   profile.StatusDraft,
			Missing:  profile.CheckRequired(ds.fields, ds.valuesOf(usr)),
		}
		if prof, ok := ds.profileOf(usr); ok {
			sum.Status = prof.Status
			sum.SubmittedAt = prof.SubmittedAt
		}
		if sum.Missing == nil {
			sum.Missing = []string{}
		}
		sums = append(sums, sum)
	}
	return sums, nil
}

// WriteTSV writes one line per student; image columns hold the stored references.
func (svc *Service) WriteTSV(ctx context.Context, w io.Writer) error {
	ds, err := svc.load(ctx)
	if err != nil {
		return err
	}
	return writeTSV(w, ds, func(_ user.User, _ field.Field, refs []string) []string { return refs })
}

// WriteZIP writes the TSV export plus every image, renamed after its student and field.
// Image columns of the bundled TSV hold the paths inside the archive.
func (svc *Service) WriteZIP(ctx context.Context, w io.Writer) error {
	ds, err := svc.load(ctx)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	files := make(map[string]string) // archive path: ref

	tsvw, err := zw.Create(tsvName)
	if err != nil {
		return errors.Wrap(err, "creating TSV entry")
	}
	err = writeTSV(tsvw, ds, func(usr user.User, fld field.Field, refs []string) []string {
		paths := make([]string, 0, len(refs))
		for i, ref := range refs {
			name := fld.Key
			if fld.Type == field.TypeMultiImage {
				name = fmt.Sprintf("%s_%d", fld.Key, i+1)
			}
			p := path.Join(imagesDir, studentSlug(usr), name+path.Ext(ref))
			files[p] = ref
			paths = append(paths, p)
		}
		return paths
	})
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := svc.copyImage(ctx, zw, p, files[p]); err != nil {
			if !core.IsNotFound(err) {
				return err
			}
			svc.logger.Warn(fmt.Sprintf("export: image %q is missing", files[p]), err)
		}
	}
	return errors.Wrap(zw.Close(), "closing archive")
}

func (svc *Service) copyImage(ctx context.Context, zw *zip.Writer, name, ref string) error {
	src, err := svc.store.OpenImageFile(ctx, ref)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: time.Now()})
	if err != nil {
		return errors.Wrapf(err, "creating entry %s", name)
	}
	_, err = io.Copy(dst, src)
	return errors.Wrapf(err, "copying %s", ref)
}

type imageCell func(usr user.User, fld field.Field, refs []string) []string

func writeTSV(w io.Writer, ds *dataset, images imageCell) error {
	tw := csv.NewWriter(w)
	tw.Comma = '\t'

	header := append([]string(nil), fixedColumns...)
	for _, fld := range ds.fields {
		header = append(header, fld.Key)
	}
	if err := tw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for _, usr := range ds.students {
		row := []string{sanitize(usr.Name), usr.Username, usr.Email, "", "", "", ""}
		if prof, ok := ds.profileOf(usr); ok {
			row[3] = string(prof.Status)
			if prof.SubmittedAt != nil {
				row[4] = prof.SubmittedAt.UTC().Format(time.RFC3339)
			}
			row[5] = sanitize(deref(prof.Nickname))
			row[6] = sanitize(deref(prof.Motto))
		} else {
			row[3] = string(profile.StatusDraft)
		}

		vals := ds.valuesOf(usr)
		for _, fld := range ds.fields {
			var cell string
			switch v := vals[fld.ID].(type) {
			case profile.Text:
				cell = sanitize(v.Text)
			case profile.SingleImage, profile.MultiImage:
				cell = strings.Join(images(usr, fld, v.Refs()), ", ")
			}
			row = append(row, cell)
		}
		if err := tw.Write(row); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}

	tw.Flush()
	return errors.Wrap(tw.Error(), "flushing TSV")
}

func sanitize(s string) string {
	return strings.TrimSpace(textSanitizer.Replace(s))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func studentSlug(usr user.User) string {
	if usr.Username != "" {
		return usr.Username
	}
	return usr.ID
}
