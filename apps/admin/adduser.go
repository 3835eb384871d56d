package main

import (
	"context"
	"fmt"

	"github.com/trezcool/abiboard/core/user"
)

// addUser validates and creates a user.User
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return translateErr(err, cli.translator)
	}

	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("created %s %q (%s)\n", usr.Role, usr.Name, usr.ID)
	return nil
}
