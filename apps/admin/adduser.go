package main

import (
	"context"

	"github.com/trezcool/chuo/core/user"
)

// addUser creates a user with the profile of its role; number is the student number or employee ID.
func (cli *commandLine) addUser(nu user.NewUser, number string) error {
	switch nu.Role {
	case user.RoleStudent:
		nu.StudentNumber = number
	case user.RoleTeachingStaff, user.RoleNonTeachingStaff:
		nu.EmployeeID = number
	}
	_, err := cli.usrSvc.Create(context.Background(), nu)
	return err
}
