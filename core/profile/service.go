package profile

import (
	"context"
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("profile")

	errLocked       = core.NewStateError("Der Steckbrief ist eingereicht und kann nicht bearbeitet werden. Bitte zuerst zurückziehen.")
	errNotSubmitted = core.NewStateError("Der Steckbrief ist nicht eingereicht.")
)

const mediaFolder = "profiles"

type (
	ServiceInterface interface {
		// Get returns the profile of usr, creating an empty draft on first access.
		Get(ctx context.Context, usr user.User) (View, error)
		SaveDraft(ctx context.Context, usr user.User, dl core.Deadline, d Draft) (View, error)
		Submit(ctx context.Context, usr user.User, dl core.Deadline) (View, error)
		Retract(ctx context.Context, usr user.User, dl core.Deadline) (View, error)
	}

	Service struct {
		repo      Repository
		fieldRepo field.Repository
		tx        core.TxRunner
		store     core.ImageStore
		mailSvc   core.EmailService
		activity  core.ActivityRecorder
		validate  *validator.Validate
		logger    core.Logger
		now       func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	fieldRepo field.Repository,
	tx core.TxRunner,
	store core.ImageStore,
	mailSvc core.EmailService,
	activity core.ActivityRecorder,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:      repo,
		fieldRepo: fieldRepo,
		tx:        tx,
		store:     store,
		mailSvc:   mailSvc,
		activity:  activity,
		validate:  validate,
		logger:    logger,
		now:       time.Now,
	}
}

func (svc *Service) Get(ctx context.Context, usr user.User) (View, error) {
	if !usr.IsStudent() {
		return View{}, core.ErrForbidden
	}
	prof, err := svc.getOrCreate(ctx, usr.ID)
	if err != nil {
		return View{}, err
	}
	return svc.view(ctx, prof)
}

// SaveDraft validates d against the active fields and stores every change in one transaction.
// New images are stored before the transaction and removed again if it fails;
// images no longer referenced are removed after commit.
func (svc *Service) SaveDraft(ctx context.Context, usr user.User, dl core.Deadline, d Draft) (View, error) {
	if err := dl.Check(svc.now()); err != nil {
		return View{}, err
	}
	if !usr.IsStudent() {
		return View{}, core.ErrForbidden
	}

	prof, err := svc.getOrCreate(ctx, usr.ID)
	if err != nil {
		return View{}, err
	}
	if !prof.IsDraft() {
		return View{}, errLocked
	}
	if err := d.Validate(svc.validate); err != nil {
		return View{}, err
	}

	flds, err := svc.fieldRepo.QueryFields(ctx, field.QueryFilter{})
	if err != nil {
		return View{}, errors.Wrap(err, "querying fields")
	}
	current, err := svc.valuesByFieldID(ctx, prof.ID)
	if err != nil {
		return View{}, err
	}

	changes, err := BuildSchema(flds).Validate(d, current)
	if err != nil {
		return View{}, err
	}
	for _, ch := range changes {
		for _, up := range ch.Uploads {
			if err := svc.store.ValidateImageFile(up); err != nil {
				var vErr *core.ValidationError
				if errors.As(err, &vErr) {
					return View{}, fieldErr(ch.Field, "%s: %s", ch.Field.Label, vErr.Error())
				}
				return View{}, errors.Wrap(err, "validating image")
			}
		}
	}

	stored, err := svc.storeUploads(ctx, prof, changes)
	if err != nil {
		return View{}, err
	}

	now := svc.now().UTC()
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, ch := range changes {
			val := FieldValue{
				ProfileID: prof.ID,
				FieldID:   ch.Field.ID,
				Value:     ch.Value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := svc.repo.UpsertValue(ctx, val, exec); err != nil {
				return errors.Wrapf(err, "saving value of %s", ch.Field.Key)
			}
		}
		if d.Nickname != nil {
			prof.Nickname = core.StringPtr(*d.Nickname)
		}
		if d.Motto != nil {
			prof.Motto = core.StringPtr(*d.Motto)
		}
		prof.UpdatedAt = now
		var err error
		prof, err = svc.repo.UpdateProfile(ctx, prof, exec)
		return errors.Wrap(err, "updating profile")
	})
	if err != nil {
		svc.deleteImages(ctx, stored)
		return View{}, err
	}

	// drop the images that were replaced or removed
	var orphans []string
	for _, ch := range changes {
		for _, ref := range refsOf(current[ch.Field.ID]) {
			if !contains(ch.Value.Refs(), ref) {
				orphans = append(orphans, ref)
			}
		}
	}
	svc.deleteImages(ctx, orphans)

	keys := make([]string, 0, len(changes))
	for _, ch := range changes {
		keys = append(keys, ch.Field.Key)
	}
	core.RecordActivity(ctx, svc.activity, svc.logger, usr.ID, core.ActivityDraftSaved, strings.Join(keys, ","))
	return svc.view(ctx, prof)
}

// storeUploads saves the uploads of changes and appends the new references to their values.
func (svc *Service) storeUploads(ctx context.Context, prof Profile, changes []Change) ([]string, error) {
	var stored []string
	folder := path.Join(mediaFolder, prof.ID)
	for i, ch := range changes {
		if len(ch.Uploads) == 0 {
			continue
		}
		refs := append([]string(nil), ch.Value.Refs()...)
		for _, up := range ch.Uploads {
			ref, err := svc.store.SaveImageFile(ctx, up, folder)
			if err != nil {
				svc.deleteImages(ctx, stored)
				return nil, errors.Wrapf(err, "storing image of %s", ch.Field.Key)
			}
			stored = append(stored, ref)
			refs = append(refs, ref)
		}
		switch ch.Value.(type) {
		case SingleImage:
			changes[i].Value = SingleImage{Ref: refs[len(refs)-1]}
		case MultiImage:
			changes[i].Value = MultiImage{Images: refs}
		}
	}
	return stored, nil
}

func (svc *Service) deleteImages(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := svc.store.DeleteImageFile(ctx, ref); err != nil {
			svc.logger.Warn(fmt.Sprintf("deleting image %q: %v", ref, err), err)
		}
	}
}

// Submit moves the profile to SUBMITTED once every active required field has a value.
// Submitting again re-timestamps the submission.
func (svc *Service) Submit(ctx context.Context, usr user.User, dl core.Deadline) (View, error) {
	if err := dl.Check(svc.now()); err != nil {
		return View{}, err
	}
	if !usr.IsStudent() {
		return View{}, core.ErrForbidden
	}

	prof, err := svc.getOrCreate(ctx, usr.ID)
	if err != nil {
		return View{}, err
	}

	flds, err := svc.fieldRepo.QueryFields(ctx, field.QueryFilter{ActiveOnly: true})
	if err != nil {
		return View{}, errors.Wrap(err, "querying fields")
	}
	values, err := svc.valuesByFieldID(ctx, prof.ID)
	if err != nil {
		return View{}, err
	}
	if missing := CheckRequired(flds, values); len(missing) > 0 {
		return View{}, &core.IncompleteSubmissionError{Missing: missing}
	}

	now := svc.now().UTC()
	prof.Status = StatusSubmitted
	prof.SubmittedAt = &now
	prof.UpdatedAt = now
	if prof, err = svc.repo.UpdateProfile(ctx, prof); err != nil {
		return View{}, errors.Wrap(err, "updating profile")
	}

	core.RecordActivity(ctx, svc.activity, svc.logger, usr.ID, core.ActivityProfileSubmitted, "")
	if svc.mailSvc != nil && usr.Email != "" {
		go svc.sendSubmissionMail(usr, now)
	}
	return svc.view(ctx, prof)
}

func (svc *Service) sendSubmissionMail(usr user.User, submittedAt time.Time) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Dein Steckbrief ist eingegangen",
		TemplateName: "submission_received",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"SubmittedAt": submittedAt.Format("02.01.2006 15:04"),
		},
	})
}

// Retract moves a submitted profile back to DRAFT so it can be edited again.
func (svc *Service) Retract(ctx context.Context, usr user.User, dl core.Deadline) (View, error) {
	if err := dl.Check(svc.now()); err != nil {
		return View{}, err
	}
	if !usr.IsStudent() {
		return View{}, core.ErrForbidden
	}

	prof, err := svc.getOrCreate(ctx, usr.ID)
	if err != nil {
		return View{}, err
	}
	if !prof.IsSubmitted() {
		return View{}, errNotSubmitted
	}

	prof.Status = StatusDraft
	prof.SubmittedAt = nil
	prof.UpdatedAt = svc.now().UTC()
	if prof, err = svc.repo.UpdateProfile(ctx, prof); err != nil {
		return View{}, errors.Wrap(err, "updating profile")
	}

	core.RecordActivity(ctx, svc.activity, svc.logger, usr.ID, core.ActivityProfileRetracted, "")
	return svc.view(ctx, prof)
}

func (svc *Service) getOrCreate(ctx context.Context, userID string) (Profile, error) {
	prof, err := svc.repo.GetProfileByUserID(ctx, userID)
	if err == nil {
		return prof, nil
	}
	if !core.IsNotFound(err) {
		return Profile{}, errors.Wrap(err, "finding profile")
	}

	now := svc.now().UTC()
	prof, err = svc.repo.CreateProfile(ctx, Profile{
		UserID:    userID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		var conflict *core.ConflictError
		if errors.As(err, &conflict) {
			// created concurrently
			return svc.repo.GetProfileByUserID(ctx, userID)
		}
		return Profile{}, errors.Wrap(err, "creating profile")
	}
	return prof, nil
}

func (svc *Service) valuesByFieldID(ctx context.Context, profileID string) (map[string]Value, error) {
	vals, err := svc.repo.QueryValues(ctx, profileID)
	if err != nil {
		return nil, errors.Wrap(err, "querying values")
	}
	values := make(map[string]Value, len(vals))
	for _, v := range vals {
		values[v.FieldID] = v.Value
	}
	return values, nil
}

func (svc *Service) view(ctx context.Context, prof Profile) (View, error) {
	flds, err := svc.fieldRepo.QueryFields(ctx, field.QueryFilter{ActiveOnly: true})
	if err != nil {
		return View{}, errors.Wrap(err, "querying fields")
	}
	values, err := svc.valuesByFieldID(ctx, prof.ID)
	if err != nil {
		return View{}, err
	}

	v := View{Profile: prof, Values: make(map[string]Value, len(flds))}
	for _, fld := range flds {
		if val, ok := values[fld.ID]; ok {
			v.Values[fld.Key] = val
		} else if empty := EmptyValue(fld.Type); empty != nil {
			v.Values[fld.Key] = empty
		}
	}
	return v, nil
}
