package cli

import (
	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/app"
	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/application/queries"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
)

// ErrNoApp is returned by commands run before the container was wired.
var ErrNoApp = errors.New("reservo needs a database connection: set DATABASE_URL or SQLITE_PATH")

// App holds the CLI application dependencies.
type App struct {
	// Command handlers
	ReserveSlotHandler *commands.ReserveSlotHandler
	TransitionHandler  *commands.TransitionHandler
	AddReviewHandler   *commands.AddReviewHandler

	// Query handlers
	GetBookingHandler    *queries.GetBookingHandler
	GetSlotStatusHandler *queries.GetSlotStatusHandler

	// Outbox operations
	OutboxRepo outbox.Repository
	Dispatcher *outbox.Dispatcher

	DB database.Connection

	// ConflictRetries bounds the reload-and-retry loop of transitions run
	// without an expected version.
	ConflictRetries int
}

// NewApp takes the handlers from a wired container.
func NewApp(c *app.Container) *App {
	return &App{
		ReserveSlotHandler:   c.ReserveSlotHandler,
		TransitionHandler:    c.TransitionHandler,
		AddReviewHandler:     c.AddReviewHandler,
		GetBookingHandler:    c.GetBookingHandler,
		GetSlotStatusHandler: c.GetSlotStatusHandler,
		OutboxRepo:           c.OutboxRepo,
		Dispatcher:           c.Dispatcher,
		DB:                   c.DB,
		ConflictRetries:      c.Config.ConflictRetries,
	}
}

// cliApp is the global CLI application instance
var cliApp *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	cliApp = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return cliApp
}

// RequireApp returns the application or ErrNoApp.
func RequireApp() (*App, error) {
	if cliApp == nil {
		return nil, ErrNoApp
	}
	return cliApp, nil
}
