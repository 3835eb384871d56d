package field

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("profile field")
	ErrKeyExists  = core.NewConflictError("key", "Ein Feld mit diesem Schlüssel existiert bereits.")
	ErrNoDeletion = core.NewMethodNotAllowedError("Felder können nicht gelöscht werden, nur deaktiviert.")

	errKeyImmutable     = errors.New("Der Schlüssel eines Feldes kann nicht geändert werden.")
	errTypeImmutable    = errors.New("Der Typ eines Feldes kann nicht geändert werden.")
	errDuplicateReorder = errors.New("Jedes Feld darf nur einmal vorkommen.")
)

type (
	ServiceInterface interface {
		Create(ctx context.Context, nf NewField, actorID string) (Field, error)
		Query(ctx context.Context, filter QueryFilter) ([]Field, error)
		// Active returns the active fields in display order.
		Active(ctx context.Context) ([]Field, error)
		GetByID(ctx context.Context, id string) (Field, error)
		Update(ctx context.Context, id string, uf UpdateField, actorID string) (Field, error)
		Reorder(ctx context.Context, ro Reorder, actorID string) ([]Field, error)
		Delete(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		tx       core.TxRunner
		activity core.ActivityRecorder
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, tx core.TxRunner, activity core.ActivityRecorder, logger core.Logger) *Service {
	return &Service{repo: repo, tx: tx, activity: activity, logger: logger}
}

// Create adds a field to the registry. Without an explicit order the field is appended.
func (svc *Service) Create(ctx context.Context, nf NewField, actorID string) (Field, error) {
	if _, err := svc.repo.GetFieldByKey(ctx, nf.Key); err == nil {
		return Field{}, ErrKeyExists
	} else if !core.IsNotFound(err) {
		return Field{}, errors.Wrap(err, "checking key uniqueness")
	}

	now := time.Now().UTC()
	fld := Field{
		Key:         nf.Key,
		Type:        nf.Type,
		Label:       nf.Label,
		Placeholder: nf.Placeholder,
		Required:    nf.Required,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nf.Active != nil {
		fld.Active = *nf.Active
	}
	// type specific constraints only
	if fld.Type.IsText() && nf.MaxLength != nil {
		fld.MaxLength = positiveOrNil(*nf.MaxLength)
	}
	if fld.Type == TypeTextarea && nf.Rows != nil {
		fld.Rows = positiveOrNil(*nf.Rows)
	}
	if fld.Type == TypeMultiImage {
		fld.MaxFiles = positiveOrNil(DefaultMaxFiles)
		if nf.MaxFiles != nil {
			fld.MaxFiles = positiveOrNil(*nf.MaxFiles)
		}
	}

	if nf.Order != nil {
		fld.Order = *nf.Order
	} else {
		flds, err := svc.repo.QueryFields(ctx, QueryFilter{})
		if err != nil {
			return Field{}, errors.Wrap(err, "querying fields")
		}
		for _, f := range flds {
			if f.Order >= fld.Order {
				fld.Order = f.Order + 1
			}
		}
	}

	fld, err := svc.repo.CreateField(ctx, fld)
	if err != nil {
		return Field{}, err
	}
	core.RecordActivity(ctx, svc.activity, svc.logger, actorID, core.ActivityFieldCreated,
		fmt.Sprintf("%s (%s)", fld.Key, fld.Type))
	return fld, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Field, error) {
	return svc.repo.QueryFields(ctx, filter)
}

func (svc *Service) Active(ctx context.Context) ([]Field, error) {
	return svc.repo.QueryFields(ctx, QueryFilter{ActiveOnly: true})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Field, error) {
	return svc.repo.GetField(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, uf UpdateField, actorID string) (Field, error) {
	fld, err := svc.repo.GetField(ctx, id)
	if err != nil {
		return Field{}, err
	}
	if uf.Key != nil && *uf.Key != fld.Key {
		return Field{}, core.NewFieldValidationError("key", errKeyImmutable.Error())
	}
	if uf.Type != nil && *uf.Type != fld.Type {
		return Field{}, core.NewFieldValidationError("type", errTypeImmutable.Error())
	}

	uf.Apply(&fld)
	fld.UpdatedAt = time.Now().UTC()
	fld, err = svc.repo.UpdateField(ctx, fld)
	if err != nil {
		return Field{}, err
	}
	core.RecordActivity(ctx, svc.activity, svc.logger, actorID, core.ActivityFieldUpdated, fld.Key)
	return fld, nil
}

// Reorder applies every item of ro in one transaction: either all fields move or none does.
func (svc *Service) Reorder(ctx context.Context, ro Reorder, actorID string) ([]Field, error) {
	now := time.Now().UTC()
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, item := range ro.Items {
			if err := svc.repo.SetFieldOrder(ctx, item.ID, item.Order, now, exec); err != nil {
				return errors.Wrapf(err, "moving field %s", item.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	core.RecordActivity(ctx, svc.activity, svc.logger, actorID, core.ActivityFieldsReordered,
		fmt.Sprintf("%d Felder", len(ro.Items)))
	return svc.repo.QueryFields(ctx, QueryFilter{})
}

// Delete always fails: fields are deactivated, never removed, so that stored values survive.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return ErrNoDeletion
}
