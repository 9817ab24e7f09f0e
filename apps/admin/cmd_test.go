package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/user"
	inmemdb "github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

var (
	usrRepo  user.Repository
	acadRepo academic.Repository
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	acadRepo = inmemdb.NewAcademicRepository(db)
	validate, _ := testutil.NewValidator()

	// start CLI
	return &commandLine{
		usrSvc:   user.NewService(usrRepo, validate),
		acadRepo: acadRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

type extra struct {
	pwd string
}

func mockReadPassword(t *testing.T, tt cliTest) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) {
		if extra, ok := tt.extra.(extra); ok {
			return []byte(extra.pwd), nil
		}
		return nil, nil
	}
	t.Cleanup(func() { readPasswordFunc = orig })
}

func checkErr(t *testing.T, err error, tt cliTest) {
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "rooms", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, cli.run(args), tt)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	student := []string{"adduser", "-email", "Awe@Test.cd", "-role", "STUDENT", "-first", "Awe", "-last", "Some", "-number", "STU001"}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-email", "a@test.cd", "-role", "DEAN", "-first", "A", "-last", "B"}, wantErr: errHelp},
		{name: "no password", args: student, wantErr: errHelp},
		{name: "student", args: student, extra: extra{pwd: "S3cure!Pass"}},
		{
			name: "staff", extra: extra{pwd: "S3cure!Pass"},
			args: []string{"adduser", "-email", "teacher@test.cd", "-role", "TEACHING_STAFF", "-first", "Tea", "-last", "Cher", "-number", "EMP001", "-department", "CS"},
		},
		{name: "admin", args: []string{"adduser", "-email", "root@test.cd", "-role", "ADMIN", "-first", "Ro", "-last", "Ot"}, extra: extra{pwd: "S3cure!Pass"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			mockReadPassword(t, tt)
			checkErr(t, cli.run(args), tt)
		})
	}

	t.Run("Stored", func(t *testing.T) {
		ctx := context.Background()

		usr, err := usrRepo.GetUserByEmail(ctx, "awe@test.cd")
		require.NoError(t, err)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("S3cure!Pass"))
		s, ok := usr.StudentProfile()
		require.True(t, ok)
		assert.Equal(t, "STU001", s.StudentNumber)

		teacher, err := usrRepo.GetUserByEmail(ctx, "teacher@test.cd")
		require.NoError(t, err)
		ts, ok := teacher.TeachingStaffProfile()
		require.True(t, ok)
		assert.Equal(t, "EMP001", ts.EmployeeID)
		assert.Equal(t, "CS", ts.Department)

		root, err := usrRepo.GetUserByEmail(ctx, "root@test.cd")
		require.NoError(t, err)
		assert.True(t, root.IsAdmin())
		assert.Nil(t, root.Profile)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		mockReadPassword(t, cliTest{extra: extra{pwd: "S3cure!Pass"}})
		err := cli.run(append([]string{"admin"}, student...))
		require.Error(t, err)
		assert.Contains(t, err.Error(), user.ErrEmailExists.Error())
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, user.RoleStudent, "awe@test.cd", "S3cure!Pass")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: extra{pwd: "N3w!Secret"}},
		{name: "reset with uppercase email", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "N3w!Secret2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			mockReadPassword(t, tt)
			err := cli.run(args)
			checkErr(t, err, tt)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
				assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
			}
		})
	}
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run([]string{"admin", "seed"}))

	for _, nu := range seedUsers {
		usr, err := usrRepo.GetUserByEmail(ctx, nu.Email)
		require.NoError(t, err, nu.Email)
		assert.Equal(t, nu.Role, usr.Role)
		assert.NoError(t, usr.CheckPassword(seedPassword))
	}

	classes, err := acadRepo.QueryAvailableClasses(ctx)
	require.NoError(t, err)
	require.Len(t, classes, len(seedSubjects))
	codes := make([]string, 0, len(classes))
	for _, c := range classes {
		codes = append(codes, c.ClassCode)
		require.NotNil(t, c.Teacher)
		assert.Equal(t, "Tom", c.Teacher.FirstName)
	}
	assert.ElementsMatch(t, []string{"CS101-A", "CS201-A", "CS301-A"}, codes)

	assert.Equal(t, errAlreadySeeded, cli.run([]string{"admin", "seed"}))
}
