package main

import (
	"context"

	"github.com/trezcool/shule/core/user"
)

// addStudent creates an active student account; the password goes through
// the full password policy.
func (cli *commandLine) addStudent(name, uname, email, pwd string) error {
	ctx := context.Background()

	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            user.RoleStudent,
	}
	if err := nu.Validate(cli.usrSvc); err != nil {
		return err
	}

	_, err := cli.usrSvc.Create(ctx, nu)
	return err
}
