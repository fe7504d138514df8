package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/internal/config"
	"github.com/jakechorley/escort-dispatch/pkg/clients/formsclient"
	"github.com/jakechorley/escort-dispatch/pkg/clients/gmailclient"
	"github.com/jakechorley/escort-dispatch/pkg/clients/sheetsclient"
	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
	"github.com/jakechorley/escort-dispatch/pkg/core/conflicts"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
	"github.com/jakechorley/escort-dispatch/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Env        string
	Cfg        *config.Config
	Database   db.Database
	Reconciler *reconciler.Reconciler
	Resolver   *availability.Resolver
	Detector   *conflicts.Detector
	Criteria   []allocator.Criterion
	RequestIDs services.RequestIDGenerator
	Registry   *prometheus.Registry
	Logger     *zap.Logger
	Ctx        context.Context

	// Google clients are created on first use so commands that never touch Sheets or Gmail
	// (e.g. against the postgres backend) skip the OAuth flow
	google  GoogleClients
	sheets  *sheetsclient.Client
	gmail   *gmailclient.Client
	forms   *formsclient.Client
	initErr error
	once    sync.Once
}

// Google holds the authenticated Google API clients
type Google struct {
	Sheets *sheetsclient.Client
	Gmail  *gmailclient.Client
	Forms  *formsclient.Client
}

// GoogleClients builds the Google clients. Gmail and Forms reuse the Sheets token.
type GoogleClients func(ctx context.Context) (*Google, error)

// SetGoogleClients installs the factory used by SheetsClient and Notifier
func (app *AppContext) SetGoogleClients(factory GoogleClients) {
	app.google = factory
}

func (app *AppContext) initGoogle() error {
	app.once.Do(func() {
		if app.google == nil {
			app.initErr = fmt.Errorf("google clients are not configured")
			return
		}
		clients, err := app.google(app.Ctx)
		if err != nil {
			app.initErr = err
			return
		}
		if app.sheets == nil {
			app.sheets = clients.Sheets
		}
		app.gmail = clients.Gmail
		app.forms = clients.Forms
	})
	return app.initErr
}

// SheetsClient returns the Sheets client, authenticating on first use
func (app *AppContext) SheetsClient() (*sheetsclient.Client, error) {
	if app.sheets != nil {
		return app.sheets, nil
	}
	if err := app.initGoogle(); err != nil {
		return nil, err
	}
	return app.sheets, nil
}

// Notifier returns the Gmail notifier, authenticating on first use
func (app *AppContext) Notifier() (services.Notifier, error) {
	if err := app.initGoogle(); err != nil {
		return nil, err
	}
	return app.gmail, nil
}

// FormsClient returns the Forms client, authenticating on first use
func (app *AppContext) FormsClient() (*formsclient.Client, error) {
	if err := app.initGoogle(); err != nil {
		return nil, err
	}
	return app.forms, nil
}

// Now is the current time in the dispatch timezone
func (app *AppContext) Now() time.Time {
	return time.Now().In(app.Cfg.Location())
}

// parseDate reads a YYYY-MM-DD argument in the dispatch timezone's calendar
func parseDate(arg, name string) (time.Time, error) {
	d, err := model.ParseDate(arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", name, err)
	}
	return d, nil
}
