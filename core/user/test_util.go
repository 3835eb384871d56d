package user

import (
	"context"

	"github.com/trezcool/abiboard/core"
)

type serviceMock struct {
	*Service
}

// NewServiceMock returns a Service that sends its emails synchronously.
func NewServiceMock(
	conf *core.Config,
	repo Repository,
	tx core.TxRunner,
	mailSvc core.EmailService,
	activity core.ActivityRecorder,
	logger core.Logger,
) ServiceInterface {
	return &serviceMock{Service: NewService(conf, repo, tx, mailSvc, activity, logger)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
