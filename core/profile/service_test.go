package profile_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/user"
	"github.com/trezcool/abiboard/services/media"
	"github.com/trezcool/abiboard/storage/database/inmem"
	"github.com/trezcool/abiboard/tests"
)

// failingRepo fails every value upsert.
type failingRepo struct {
	profile.Repository
}

func (failingRepo) UpsertValue(ctx context.Context, val profile.FieldValue, exec ...core.DBExecutor) (profile.FieldValue, error) {
	return profile.FieldValue{}, errors.New("disk full")
}

type fixture struct {
	db       *inmemdb.DB
	repo     profile.Repository
	fldRepo  field.Repository
	store    *mediasvc.MemoryStore
	svc      *profile.Service
	student  user.User
	admin    user.User
	portrait field.Field
	photos   field.Field
	quote    field.Field
}

func setup(t *testing.T) *fixture {
	conf := testutil.NewConfig()
	f := &fixture{db: inmemdb.Open(), store: mediasvc.NewMemoryStore(conf.Media.MaxFileSize)}
	f.repo = inmemdb.NewProfileRepository(f.db)
	f.fldRepo = inmemdb.NewFieldRepository(f.db)
	validate, _ := testutil.NewValidator()
	f.svc = profile.NewService(f.repo, f.fldRepo, f.db, f.store, nil, f.db, validate, testutil.NewLogger(conf))

	usrRepo := inmemdb.NewUserRepository(f.db)
	f.student = testutil.CreateUser(t, usrRepo, "Anna Berg", "anna", "anna@abi.de", "", user.RoleStudent, true)
	f.admin = testutil.CreateUser(t, usrRepo, "Frau Admin", "admin", "admin@abi.de", "", user.RoleAdmin, true)

	f.quote = testutil.CreateField(t, f.fldRepo, "quote", field.TypeText, "Zitat", 0, true, testutil.WithMaxLength(30))
	f.portrait = testutil.CreateField(t, f.fldRepo, "portrait", field.TypeSingleImage, "Porträt", 1, true)
	f.photos = testutil.CreateField(t, f.fldRepo, "photos", field.TypeMultiImage, "Fotos", 2, false)
	return f
}

func values(t *testing.T, raw string) map[string]json.RawMessage {
	var vals map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &vals))
	return vals
}

func pngUpload(t *testing.T, name string) core.Upload {
	return core.UploadFromBytes(name, testutil.PNG(t, 3, 3))
}

func TestService_Get(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.admin)
	assert.Equal(t, core.ErrForbidden, err)

	v, err := f.svc.Get(ctx, f.student)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusDraft, v.Status)
	assert.Equal(t, f.student.ID, v.UserID)
	assert.Equal(t, map[string]profile.Value{
		"quote":    profile.Text{},
		"portrait": profile.SingleImage{},
		"photos":   profile.MultiImage{},
	}, v.Values)

	again, err := f.svc.Get(ctx, f.student)
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID, "one profile per student")

	profs, err := f.repo.QueryProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profs, 1)
}

func TestService_SaveDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("admins have no profile", func(t *testing.T) {
		_, err := f.svc.SaveDraft(ctx, f.admin, core.Deadline{}, profile.Draft{})
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("deadline passed", func(t *testing.T) {
		dl := core.NewDeadline(time.Now().Add(-time.Second))
		_, err := f.svc.SaveDraft(ctx, f.student, dl, profile.Draft{Values: values(t, `{"quote": "x"}`)})
		assert.Equal(t, core.ErrDeadlinePassed, err)

		profs, err := f.repo.QueryProfiles(ctx)
		require.NoError(t, err)
		assert.Empty(t, profs)
		assert.Empty(t, f.store.Refs())
	})

	var portraitRef string
	t.Run("values and uploads", func(t *testing.T) {
		nickname := "Anni"
		v, err := f.svc.SaveDraft(ctx, f.student, core.NewDeadline(time.Now().Add(time.Hour)), profile.Draft{
			Nickname: &nickname,
			Values:   values(t, `{"quote": "Carpe diem"}`),
			Uploads: map[string][]core.Upload{
				"portrait": {pngUpload(t, "me.png")},
				"photos":   {pngUpload(t, "1.png"), pngUpload(t, "2.png")},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, profile.Text{Text: "Carpe diem"}, v.Values["quote"])
		require.NotNil(t, v.Nickname)
		assert.Equal(t, "Anni", *v.Nickname)

		portraitRef = v.Values["portrait"].(profile.SingleImage).Ref
		assert.True(t, strings.HasPrefix(portraitRef, "profiles/"+v.ID+"/"), portraitRef)
		assert.Len(t, v.Values["photos"].Refs(), 2)
		assert.Len(t, f.store.Refs(), 3)
	})

	t.Run("nickname too long", func(t *testing.T) {
		nickname := strings.Repeat("a", 101)
		_, err := f.svc.SaveDraft(ctx, f.student, core.Deadline{}, profile.Draft{Nickname: &nickname})
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
		assert.Equal(t, "nickname", vErrs[0].Field())
	})

	t.Run("failed save removes new images", func(t *testing.T) {
		validate, _ := testutil.NewValidator()
		svc := profile.NewService(failingRepo{f.repo}, f.fldRepo, f.db, f.store, nil, f.db, validate, testutil.NewLogger(testutil.NewConfig()))
		_, err := svc.SaveDraft(ctx, f.student, core.Deadline{}, profile.Draft{
			Uploads: map[string][]core.Upload{"portrait": {pngUpload(t, "new.png")}},
		})
		require.Error(t, err)
		assert.Len(t, f.store.Refs(), 3)
		assert.Contains(t, f.store.Refs(), portraitRef)
	})

	t.Run("invalid image", func(t *testing.T) {
		_, err := f.svc.SaveDraft(ctx, f.student, core.Deadline{}, profile.Draft{
			Uploads: map[string][]core.Upload{"portrait": {core.UploadFromBytes("me.png", []byte("not an image"))}},
		})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "portrait", vErr.Fields[0].Field)
		assert.Len(t, f.store.Refs(), 3)
	})

	t.Run("removed images are deleted", func(t *testing.T) {
		v, err := f.svc.SaveDraft(ctx, f.student, core.Deadline{}, profile.Draft{Values: values(t, `{"portrait": null, "photos": []}`)})
		require.NoError(t, err)
		assert.True(t, v.Values["portrait"].Empty())
		assert.True(t, v.Values["photos"].Empty())
		assert.Empty(t, f.store.Refs())
		assert.Equal(t, profile.Text{Text: "Carpe diem"}, v.Values["quote"], "absent keys are left as is")
	})

	t.Run("values of deactivated fields are kept", func(t *testing.T) {
		quote := f.quote
		quote.Active = false
		_, err := f.fldRepo.UpdateField(ctx, quote)
		require.NoError(t, err)

		v, err := f.svc.SaveDraft(ctx, f.student, core.Deadline{}, profile.Draft{Values: values(t, `{"quote": "ignored"}`)})
		require.NoError(t, err)
		assert.NotContains(t, v.Values, "quote")

		vals, err := f.repo.QueryValues(ctx, v.ID)
		require.NoError(t, err)
		var found bool
		for _, val := range vals {
			if val.FieldID == f.quote.ID {
				found = true
				assert.Equal(t, profile.Text{Text: "Carpe diem"}, val.Value)
			}
		}
		assert.True(t, found)
	})
}

func TestService_SubmitAndRetract(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	open := core.Deadline{}

	_, err := f.svc.Retract(ctx, f.student, open)
	var stateErr *core.StateError
	require.ErrorAs(t, err, &stateErr)

	_, err = f.svc.Submit(ctx, f.student, open)
	var incomplete *core.IncompleteSubmissionError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"Zitat ist ein Pflichtfeld.", "Porträt ist ein Pflichtfeld."}, incomplete.Missing)

	_, err = f.svc.SaveDraft(ctx, f.student, open, profile.Draft{
		Values:  values(t, `{"quote": "Carpe diem"}`),
		Uploads: map[string][]core.Upload{"portrait": {pngUpload(t, "me.png")}},
	})
	require.NoError(t, err)

	v, err := f.svc.Submit(ctx, f.student, open)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusSubmitted, v.Status)
	require.NotNil(t, v.SubmittedAt)
	first := *v.SubmittedAt

	_, err = f.svc.SaveDraft(ctx, f.student, open, profile.Draft{Values: values(t, `{"quote": "x"}`)})
	require.ErrorAs(t, err, &stateErr)
	nickname := strings.Repeat("a", 101)
	_, err = f.svc.SaveDraft(ctx, f.student, open, profile.Draft{Nickname: &nickname})
	require.ErrorAs(t, err, &stateErr, "the lock is reported before invalid input")

	time.Sleep(time.Millisecond)
	v, err = f.svc.Submit(ctx, f.student, open)
	require.NoError(t, err)
	assert.True(t, v.SubmittedAt.After(first), "resubmitting re-timestamps")

	passed := core.NewDeadline(time.Now().Add(-time.Minute))
	_, err = f.svc.Retract(ctx, f.student, passed)
	assert.Equal(t, core.ErrDeadlinePassed, err)
	_, err = f.svc.Submit(ctx, f.student, passed)
	assert.Equal(t, core.ErrDeadlinePassed, err)
	_, err = f.svc.SaveDraft(ctx, f.student, passed, profile.Draft{Values: values(t, `{"quote": "x"}`)})
	assert.Equal(t, core.ErrDeadlinePassed, err)

	stored, err := f.repo.GetProfileByUserID(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusSubmitted, stored.Status)
	require.NotNil(t, stored.SubmittedAt)
	assert.True(t, stored.SubmittedAt.Equal(*v.SubmittedAt))
	vals, err := f.repo.QueryValues(ctx, stored.ID)
	require.NoError(t, err)
	for _, val := range vals {
		if val.FieldID == f.quote.ID {
			assert.Equal(t, profile.Text{Text: "Carpe diem"}, val.Value)
		}
	}

	v, err = f.svc.Retract(ctx, f.student, open)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusDraft, v.Status)
	assert.Nil(t, v.SubmittedAt)
	assert.Equal(t, profile.Text{Text: "Carpe diem"}, v.Values["quote"])

	var actions []string
	for _, act := range f.db.Activities() {
		actions = append(actions, act.Action)
	}
	assert.Equal(t, []string{
		core.ActivityDraftSaved,
		core.ActivityProfileSubmitted,
		core.ActivityProfileSubmitted,
		core.ActivityProfileRetracted,
	}, actions)
}
