package setting

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

// setting keys
const KeyDeadline = "deadline"

var ErrNotFound = core.NewNotFoundError("setting")

// Settings are the global yearbook settings.
type Settings struct {
	Deadline core.Deadline `json:"deadline"`
}

// UpdateSettings is the admin payload. A nil DeadlineAt clears the deadline.
type UpdateSettings struct {
	DeadlineAt *time.Time `json:"deadline_at"`
}

type (
	Repository interface {
		GetSetting(ctx context.Context, key string, exec ...core.DBExecutor) (string, error)
		SetSetting(ctx context.Context, key, value string, updatedAt time.Time, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Get(ctx context.Context) (Settings, error)
		// Deadline returns the current deadline, read once per request.
		Deadline(ctx context.Context) (core.Deadline, error)
		SetDeadline(ctx context.Context, at *time.Time, actorID string) (Settings, error)
	}

	Service struct {
		repo     Repository
		activity core.ActivityRecorder
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, activity core.ActivityRecorder, logger core.Logger) *Service {
	return &Service{repo: repo, activity: activity, logger: logger}
}

// Seed stores the configured initial deadline if no deadline was ever stored.
func (svc *Service) Seed(ctx context.Context, conf *core.Config) error {
	if conf.Yearbook.InitialDeadline.IsZero() {
		return nil
	}
	if _, err := svc.repo.GetSetting(ctx, KeyDeadline); err == nil {
		return nil
	} else if !core.IsNotFound(err) {
		return errors.Wrap(err, "reading deadline")
	}
	return svc.repo.SetSetting(ctx, KeyDeadline, conf.Yearbook.InitialDeadline.UTC().Format(time.RFC3339), time.Now().UTC())
}

func (svc *Service) Get(ctx context.Context) (Settings, error) {
	dl, err := svc.Deadline(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{Deadline: dl}, nil
}

func (svc *Service) Deadline(ctx context.Context) (core.Deadline, error) {
	val, err := svc.repo.GetSetting(ctx, KeyDeadline)
	if err != nil {
		if core.IsNotFound(err) {
			return core.Deadline{}, nil
		}
		return core.Deadline{}, errors.Wrap(err, "reading deadline")
	}
	if val == "" {
		return core.Deadline{}, nil
	}
	at, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return core.Deadline{}, errors.Wrapf(err, "parsing deadline %q", val)
	}
	return core.NewDeadline(at), nil
}

func (svc *Service) SetDeadline(ctx context.Context, at *time.Time, actorID string) (Settings, error) {
	// a cleared deadline is stored empty so that Seed never brings it back
	var val string
	details := "keine Frist"
	if at != nil {
		val = at.UTC().Format(time.RFC3339)
		details = val
	}
	if err := svc.repo.SetSetting(ctx, KeyDeadline, val, time.Now().UTC()); err != nil {
		return Settings{}, errors.Wrap(err, "storing deadline")
	}

	core.RecordActivity(ctx, svc.activity, svc.logger, actorID, core.ActivityDeadlineChanged, details)
	return svc.Get(ctx)
}
