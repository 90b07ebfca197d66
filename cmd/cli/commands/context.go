package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/overlap/internal/config"
	"github.com/jakechorley/overlap/pkg/clients/assistant"
	"github.com/jakechorley/overlap/pkg/clients/gmailclient"
	"github.com/jakechorley/overlap/pkg/clients/sheetsclient"
	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/services"
	"github.com/jakechorley/overlap/pkg/core/syncer"
	"github.com/jakechorley/overlap/pkg/localstate"
	"github.com/jakechorley/overlap/pkg/store"
	"github.com/jakechorley/overlap/pkg/utils"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg     *config.Config
	Env     string
	Store   store.DocumentStore
	Session *syncer.Synchronizer
	State   *localstate.State
	Logger  *zap.Logger
	Ctx     context.Context
	Now     func() time.Time

	// Chat is the assistant conversation for the open event, kept for the
	// lifetime of an interactive session
	Chat []assistant.Turn

	// Built on first use; tests may set them directly
	SheetsClient    services.SuggestionPublisher
	GmailClient     services.Mailer
	AssistantClient services.Completer

	mu      sync.Mutex
	watcher func(model.EventRecord)

	// polledID is the event the background poll follows in a session
	polledID string
}

var errNoEvent = fmt.Errorf("%w: no event is open, use `open <link>` first", model.ErrValidation)

func (app *AppContext) today() time.Time {
	if app.Now != nil {
		return app.Now()
	}
	return time.Now()
}

// openView returns the open event or errNoEvent
func (app *AppContext) openView() (model.EventRecord, error) {
	rec, ok := app.Session.View()
	if !ok {
		return model.EventRecord{}, errNoEvent
	}
	return rec, nil
}

// bestDates ranks the open event's date groups over the configured horizon
func (app *AppContext) bestDates() (model.EventRecord, []model.DateGroup, error) {
	rec, err := app.openView()
	if err != nil {
		return model.EventRecord{}, nil, err
	}
	return rec, aggregator.BestDates(rec, app.today(), app.Cfg.HorizonDays), nil
}

// HandleUpdate receives every polled view from the synchronizer and hands
// it to the active watcher, if any
func (app *AppContext) HandleUpdate(rec model.EventRecord) {
	app.mu.Lock()
	watcher := app.watcher
	app.mu.Unlock()
	if watcher != nil {
		watcher(rec)
	}
}

func (app *AppContext) setWatcher(fn func(model.EventRecord)) {
	app.mu.Lock()
	app.watcher = fn
	app.mu.Unlock()
}

// ResumeActiveEvent reopens the event that was active when the previous
// command exited. A vanished event drops the device back to neutral.
func (app *AppContext) ResumeActiveEvent() {
	id, ok, err := app.State.ActiveEvent(app.Ctx)
	if err != nil {
		app.Logger.Warn("Failed to load active event", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	app.Logger.Debug("Resuming active event", zap.String("id", id))
	if _, err := app.Session.Read(app.Ctx, id); err != nil {
		app.Logger.Warn("Failed to resume active event", zap.String("id", id), zap.Error(err))
		if clearErr := app.State.ClearActiveEvent(app.Ctx); clearErr != nil {
			app.Logger.Warn("Failed to clear active event", zap.Error(clearErr))
		}
		if errors.Is(err, model.ErrNotFound) {
			if forgetErr := app.State.Forget(app.Ctx, id); forgetErr != nil {
				app.Logger.Warn("Failed to forget missing event", zap.String("id", id), zap.Error(forgetErr))
			}
		}
	}
}

// googleClients authorises once and builds the Sheets and Gmail clients
func (app *AppContext) googleClients() error {
	if app.SheetsClient != nil && app.GmailClient != nil {
		return nil
	}

	app.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(app.Env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return err
	}

	tokens, err := utils.NewTokenSource(oauthConfig, app.Env, app.Logger)
	if err != nil {
		return err
	}
	token, err := tokens.Token(app.Ctx)
	if err != nil {
		return fmt.Errorf("failed to authorise with Google: %w", err)
	}
	httpClient := oauthConfig.Client(app.Ctx, token)

	if app.SheetsClient == nil {
		app.Logger.Info("Initializing sheets client")
		sheets, err := sheetsclient.NewClient(app.Ctx, httpClient, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to create sheets client: %w", err)
		}
		app.SheetsClient = sheets
	}
	if app.GmailClient == nil {
		app.Logger.Info("Initializing gmail client")
		gmail, err := gmailclient.NewClient(app.Ctx, httpClient, app.Cfg.GmailSender, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		app.GmailClient = gmail
	}
	return nil
}

// completer returns the assistant client, or nil when no API key is set
func (app *AppContext) completer() services.Completer {
	if app.AssistantClient != nil {
		return app.AssistantClient
	}
	if app.Cfg.Secrets.APIKey == "" {
		return nil
	}

	client, err := assistant.NewClient(app.Ctx, app.Cfg.Secrets.APIKey, app.Cfg.AssistantModel, app.Logger)
	if err != nil {
		app.Logger.Warn("Failed to create assistant client", zap.Error(err))
		return nil
	}
	app.AssistantClient = client
	return client
}

// followOpenEvent keeps background polling in step with the open event.
// Polling starts when an event is opened, restarts when another one is
// opened or a watch stopped it, and stops once no event is open.
func (app *AppContext) followOpenEvent(ctx context.Context) {
	id := app.Session.EventID()
	if id == app.polledID && (id == "" || app.Session.Polling()) {
		return
	}

	app.Session.StopPolling()
	app.polledID = id
	if id == "" {
		app.Logger.Debug("Stopped polling, no event open")
		return
	}

	app.Logger.Debug("Polling open event", zap.String("id", id), zap.Duration("interval", app.Cfg.PollInterval))
	app.Session.StartPolling(ctx, app.Cfg.PollInterval)
}

// stopFollowing ends background polling for the session
func (app *AppContext) stopFollowing() {
	app.Session.StopPolling()
	app.polledID = ""
}

// describe turns a service error into the line shown to the user
func describe(err error) string {
	switch {
	case errors.Is(err, model.ErrDeleted):
		return syncer.DeletedNotice
	case errors.Is(err, model.ErrNotFound):
		return "Event not found. It may have been deleted."
	default:
		return err.Error()
	}
}
