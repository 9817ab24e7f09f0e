package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/user"
)

const seedPassword = "Seed!Pass2024"

var errAlreadySeeded = errors.New("database already seeded")

var (
	seedUsers = []user.NewUser{
		{Email: "admin@chuo.test", FirstName: "Ada", LastName: "Admin", Role: user.RoleAdmin},
		{Email: "teacher@chuo.test", FirstName: "Tom", LastName: "Mbala", Role: user.RoleTeachingStaff, EmployeeID: "EMP001", Department: "Computer Science", Position: "Lecturer"},
		{Email: "registrar@chuo.test", FirstName: "Rita", LastName: "Kasongo", Role: user.RoleNonTeachingStaff, EmployeeID: "EMP002", Department: "Registry", Position: "Registrar"},
		{Email: "student1@chuo.test", FirstName: "Sam", LastName: "Ilunga", Role: user.RoleStudent, StudentNumber: "STU001"},
		{Email: "student2@chuo.test", FirstName: "Sara", LastName: "Tshala", Role: user.RoleStudent, StudentNumber: "STU002"},
	}

	seedSubjects = []academic.Subject{
		{Code: "CS101", Name: "Introduction to Programming", Credits: 3, IsActive: true},
		{Code: "CS201", Name: "Data Structures", Credits: 4, IsActive: true},
		{Code: "CS301", Name: "Databases", Credits: 3, IsActive: true},
	}
)

// seed creates sample users, subjects and one class per subject taught by the seeded teacher.
func (cli *commandLine) seed() error {
	ctx := context.Background()

	if _, err := cli.usrSvc.GetByEmail(ctx, seedUsers[0].Email); err == nil {
		return errAlreadySeeded
	} else if errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "checking seed admin")
	}

	var teacherID string
	for _, nu := range seedUsers {
		nu.Password = seedPassword
		usr, err := cli.usrSvc.Create(ctx, nu)
		if err != nil {
			return errors.Wrapf(err, "creating user %s", nu.Email)
		}
		if t, ok := usr.TeachingStaffProfile(); ok {
			teacherID = t.ID
		}
		fmt.Printf("user %s (%s) created\n", usr.Email, usr.Role)
	}

	for _, s := range seedSubjects {
		subj, err := cli.acadRepo.CreateSubject(ctx, s)
		if err != nil {
			return errors.Wrapf(err, "creating subject %s", s.Code)
		}
		class, err := cli.acadRepo.CreateClass(ctx, academic.Class{
			SubjectID:    subj.ID,
			TeacherID:    teacherID,
			ClassCode:    subj.Code + "-A",
			Semester:     "Fall",
			AcademicYear: "2024-2025",
			MaxStudents:  30,
			Room:         "Room " + subj.Code[2:],
			Schedule:     "Mon/Wed 09:00-10:30",
			CreatedAt:    core.NowFunc(),
		})
		if err != nil {
			return errors.Wrapf(err, "creating class of %s", subj.Code)
		}
		fmt.Printf("class %s created\n", class.ClassCode)
	}

	fmt.Printf("seed users password: %s\n", seedPassword)
	return nil
}
