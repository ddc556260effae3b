package main

import (
	"log"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	redisstore "github.com/trezcool/shule/storage/redis"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.Conf
	errAndDie(conf.Validate())

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(database.Ping(db))

	appLogger := logsvc.NewStdLogger(logger)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))

	var (
		otpStore auth.OTPStore
		registry auth.SessionRegistry
	)
	if conf.Redis.Enabled {
		client, err := redisstore.NewClient(conf)
		errAndDie(err)
		defer func() { _ = client.Close() }()
		otpStore = redisstore.NewOTPStore(client)
		registry = redisstore.NewSessionRegistry(client)
	} else {
		otpStore = sqlxrepos.NewOTPStore(db)
		registry = sqlxrepos.NewSessionRegistry(db)
	}

	authSvc := auth.NewService(
		conf,
		usrSvc,
		auth.NewTokenService(conf),
		auth.NewOTPManager(conf, otpStore, emailsvc.NewConsoleService(), appLogger),
		registry,
		nil, // CLI commands are operator-driven, no rate limit
		appLogger,
	)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrSvc:  usrSvc,
		authSvc: authSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
