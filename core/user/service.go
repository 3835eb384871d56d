package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = core.NewConflictError("email", "Ein Benutzer mit dieser E-Mail-Adresse existiert bereits.")
	ErrUsernameExists = core.NewConflictError("username", "Ein Benutzer mit diesem Benutzernamen existiert bereits.")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user,
		// not in excludedUsers, already owns username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		ImportRoster(ctx context.Context, entries []RosterEntry, actorID string) (ImportResult, error)
	}

	Service struct {
		conf     *core.Config
		repo     Repository
		tx       core.TxRunner
		mailSvc  core.EmailService
		activity core.ActivityRecorder
		logger   core.Logger
		tokens   tokenGenerator
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	tx core.TxRunner,
	mailSvc core.EmailService,
	activity core.ActivityRecorder,
	logger core.Logger,
) *Service {
	return &Service{
		conf:     conf,
		repo:     repo,
		tx:       tx,
		mailSvc:  mailSvc,
		activity: activity,
		logger:   logger,
		tokens:   newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	return svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers)
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleStudent
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

// RequestPasswordReset mails a reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		svc.logger.Error(errors.Wrap(err, "making password reset token").Error(), err, usr)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Passwort zurücksetzen",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Username": usr.Username,
			"UID":      EncodeUID(usr),
			"Token":    token,
		},
	})
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errors.New("Ungültiger oder abgelaufener Link."))

	uid, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidErr
		}
		return err
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return invalidErr
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
