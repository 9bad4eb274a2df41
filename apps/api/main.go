package main

import (
	"context"
	"fmt"
	"log"
	"os"

	echoapi "github.com/chibale/darasa/apps/api/echo"
	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/enrollment"
	"github.com/chibale/darasa/core/user"
	emailsvc "github.com/chibale/darasa/services/email"
	sendgridmail "github.com/chibale/darasa/services/email/sendgrid"
	logsvc "github.com/chibale/darasa/services/logger"
	"github.com/chibale/darasa/storage/database"
	sqlxrepos "github.com/chibale/darasa/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = sendgridmail.NewService(
			core.Conf.SendgridAPIKey, core.Conf.AppName, core.Conf.DefaultFromEmail.Address, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	catalog := sqlxrepos.NewCourseCatalog(db)
	usrSvc := user.NewService(usrRepo)
	enrSvc := enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db), catalog, usrRepo, mailSvc, logger)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Address:       core.Conf.Server.Address,
		Logger:        logger,
		UserSvc:       usrSvc,
		EnrollmentSvc: enrSvc,
		Catalog:       catalog,
	})
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}
