package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func setup(t *testing.T) (*commandLine, *inmemdb.DB) {
	t.Helper()
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags)

	db := inmemdb.NewDB()
	usrSvc := user.NewService(inmemdb.NewUserRepository(db))
	appLogger := logsvc.NewStdLogger(logger)

	authSvc := auth.NewService(
		core.Conf,
		usrSvc,
		auth.NewTokenService(core.Conf),
		auth.NewOTPManager(core.Conf, inmemdb.NewOTPStore(db), emailsvc.NewConsoleService(), appLogger),
		inmemdb.NewSessionRegistry(db),
		nil,
		appLogger,
	)

	return &commandLine{usrSvc: usrSvc, authSvc: authSvc}, db
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
}

func TestCommandLine_help(t *testing.T) {
	cli, _ := setup(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: []string{"admin"}},
		{name: "unknown command", args: []string{"admin", "lol"}},
		{name: "migrate: no subcommand", args: []string{"admin", "migrate"}},
		{name: "addstudent: missing flags", args: []string{"admin", "addstudent", "-name", "Neo"}},
		{name: "resetpassword: missing username", args: []string{"admin", "resetpassword"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, errHelp, cli.run(tt.args))
		})
	}
}

func TestCommandLine_addStudent(t *testing.T) {
	orig := readPasswordFunc
	defer func() { readPasswordFunc = orig }()
	cli, _ := setup(t)
	ctx := context.Background()

	t.Run("weak password is rejected", func(t *testing.T) {
		mockPassword("password")
		err := cli.run([]string{"admin", "addstudent", "-name", "Neo Anderson", "-username", "theone", "-email", "neo@test.cd"})
		assert.Error(t, err)
	})

	t.Run("empty password asks for help", func(t *testing.T) {
		mockPassword("")
		err := cli.run([]string{"admin", "addstudent", "-name", "Neo Anderson", "-username", "theone", "-email", "neo@test.cd"})
		assert.Equal(t, errHelp, err)
	})

	mockPassword("Tr0ub4dor&3")
	require.NoError(t, cli.run([]string{"admin", "addstudent", "-name", "Neo Anderson", "-username", "theone", "-email", "neo@test.cd"}))

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "theone")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Tr0ub4dor&3"))

	t.Run("duplicate username is rejected", func(t *testing.T) {
		mockPassword("Tr0ub4dor&3")
		err := cli.run([]string{"admin", "addstudent", "-name", "Other", "-username", "theone", "-email", "other@test.cd"})
		assert.Error(t, err)
	})
}

func TestCommandLine_resetPassword(t *testing.T) {
	orig := readPasswordFunc
	defer func() { readPasswordFunc = orig }()
	cli, _ := setup(t)
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		mockPassword("Tr0ub4dor&3")
		err := cli.run([]string{"admin", "resetpassword", "-username", "ghost"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	mockPassword("Tr0ub4dor&3")
	require.NoError(t, cli.run([]string{"admin", "addstudent", "-name", "Neo Anderson", "-username", "theone", "-email", "neo@test.cd"}))

	mockPassword("C0rrect-horse!")
	require.NoError(t, cli.run([]string{"admin", "resetpassword", "-username", "theone"}))

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "theone")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("C0rrect-horse!"))
	assert.Error(t, usr.CheckPassword("Tr0ub4dor&3"))
}

func TestCommandLine_migrate(t *testing.T) {
	orig := gooseRunFunc
	defer func() { gooseRunFunc = orig }()
	cli, _ := setup(t)

	var gotCommand string
	var gotArgs []string
	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		gotCommand = command
		gotArgs = args
		return nil
	}

	require.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	assert.Equal(t, "up", gotCommand)
	assert.Empty(t, gotArgs)

	require.NoError(t, cli.run([]string{"admin", "migrate", "up-to", "2"}))
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, []string{"2"}, gotArgs)
}

func TestCommandLine_sweepExpired(t *testing.T) {
	cli, db := setup(t)
	ctx := context.Background()

	store := inmemdb.NewOTPStore(db)
	now := time.Now()
	require.NoError(t, store.ReplaceOTP(ctx, auth.OTP{Email: "old@test.cd", Code: "123456", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.ReplaceOTP(ctx, auth.OTP{Email: "fresh@test.cd", Code: "654321", ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, cli.run([]string{"admin", "sweepexpired"}))

	_, err := store.GetOTP(ctx, "old@test.cd")
	assert.Equal(t, auth.ErrNoRecord, err)
	_, err = store.GetOTP(ctx, "fresh@test.cd")
	assert.NoError(t, err)
}
