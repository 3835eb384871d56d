package main

import (
	"context"
	"fmt"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

func (cli *commandLine) importRoster(fp string) error {
	f, err := os.Open(fp)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer f.Close()

	entries, err := user.ParseRoster(f, cli.validate, cli.translator)
	if err != nil {
		return err
	}
	res, err := cli.usrSvc.ImportRoster(context.Background(), entries, "")
	if err != nil {
		return err
	}
	for _, usr := range res.Created {
		fmt.Printf("  %s <%s>\n", usr.Name, usr.Email)
	}
	fmt.Printf("%d students imported\n", len(res.Created))
	return nil
}

// translateErr turns validator errors into a *core.ValidationError with German messages.
func translateErr(err error, translator ut.Translator) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}
	flds := make([]core.FieldError, 0, len(vErrs))
	for _, fe := range vErrs {
		flds = append(flds, core.FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return core.NewValidationError(nil, flds...)
}
