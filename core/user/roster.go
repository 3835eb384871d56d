package user

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

var (
	rosterColumns    = []string{"name", "email", "username"}
	errRosterEmpty   = errors.New("Die Datei enthält keine Einträge.")
	errRosterColumns = errors.New("Die Kopfzeile muss die Spalten name und email enthalten.")
)

// RosterEntry is one student line of a roster file.
type RosterEntry struct {
	Line     int    `json:"-"`
	Name     string `json:"name" validate:"notblank"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"omitempty,min=3,alphanum_"`
}

type ImportResult struct {
	Created []User `json:"created"`
}

// ParseRoster reads a CSV roster with a header line naming at least the name and email columns.
// Both comma and semicolon separated files are accepted.
// Every invalid line is reported in the returned *core.ValidationError.
func ParseRoster(r io.Reader, validate *validator.Validate, translator ut.Translator) ([]RosterEntry, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.Wrap(err, "reading roster")
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	firstLine := strings.SplitN(string(head), "\n", 2)[0]
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		cr.Comma = ';'
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "CSV"))
	}
	if len(records) < 2 {
		return nil, core.NewValidationError(errRosterEmpty)
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		cols[core.CleanString(strings.TrimPrefix(h, "\ufeff"), true /* lower */)] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, core.NewValidationError(errRosterColumns)
	}
	if _, ok := cols["email"]; !ok {
		return nil, core.NewValidationError(errRosterColumns)
	}

	cell := func(rec []string, col string) string {
		if i, ok := cols[col]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var (
		entries []RosterEntry
		flds    []core.FieldError
	)
	for i, rec := range records[1:] {
		line := i + 2
		entry := RosterEntry{
			Line:     line,
			Name:     core.CleanString(cell(rec, rosterColumns[0])),
			Email:    core.CleanString(cell(rec, rosterColumns[1]), true /* lower */),
			Username: core.CleanString(cell(rec, rosterColumns[2]), true /* lower */),
		}
		if entry.Name == "" && entry.Email == "" && entry.Username == "" {
			continue // blank line
		}
		if err := validate.Struct(entry); err != nil {
			var vErrs validator.ValidationErrors
			if !errors.As(err, &vErrs) {
				return nil, err
			}
			for _, fe := range vErrs {
				flds = append(flds, core.FieldError{Field: lineField(line, fe.Field()), Error: fe.Translate(translator)})
			}
			continue
		}
		entries = append(entries, entry)
	}

	if len(flds) > 0 {
		return nil, core.NewValidationError(nil, flds...)
	}
	if len(entries) == 0 {
		return nil, core.NewValidationError(errRosterEmpty)
	}
	return entries, nil
}

// ImportRoster creates a STUDENT account per entry in a single transaction.
// Accounts have no password: students set one through the password reset flow.
func (svc *Service) ImportRoster(ctx context.Context, entries []RosterEntry, actorID string) (ImportResult, error) {
	var res ImportResult

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var flds []core.FieldError
		seenEmails := make(map[string]int)
		seenUnames := make(map[string]int)

		for _, entry := range entries {
			if prev, ok := seenEmails[entry.Email]; ok {
				flds = append(flds, core.FieldError{
					Field: lineField(entry.Line, "email"),
					Error: fmt.Sprintf("Doppelter Eintrag, siehe Zeile %d.", prev),
				})
				continue
			}
			seenEmails[entry.Email] = entry.Line

			if entry.Username != "" {
				if prev, ok := seenUnames[entry.Username]; ok {
					flds = append(flds, core.FieldError{
						Field: lineField(entry.Line, "username"),
						Error: fmt.Sprintf("Doppelter Eintrag, siehe Zeile %d.", prev),
					})
					continue
				}
				seenUnames[entry.Username] = entry.Line
			}

			if err := svc.repo.CheckUsernameUniqueness(ctx, entry.Username, entry.Email, nil, exec); err != nil {
				var conflict *core.ConflictError
				if !errors.As(err, &conflict) {
					return err
				}
				flds = append(flds, core.FieldError{Field: lineField(entry.Line, conflict.Field), Error: conflict.Message})
			}
		}
		if len(flds) > 0 {
			return core.NewValidationError(nil, flds...)
		}

		now := time.Now().UTC()
		for _, entry := range entries {
			usr := User{
				Name:      entry.Name,
				Username:  entry.Username,
				Email:     entry.Email,
				Role:      RoleStudent,
				CreatedAt: now,
				UpdatedAt: now,
			}
			usr.SetActive(true)
			created, err := svc.repo.CreateUser(ctx, usr, exec)
			if err != nil {
				return errors.Wrapf(err, "creating user of line %d", entry.Line)
			}
			res.Created = append(res.Created, created)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	core.RecordActivity(ctx, svc.activity, svc.logger, actorID, core.ActivityRosterImported,
		fmt.Sprintf("%d Schüler:innen importiert", len(res.Created)))
	return res, nil
}

func lineField(line int, field string) string {
	return fmt.Sprintf("zeile_%d.%s", line, field)
}
