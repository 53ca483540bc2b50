package cli

import (
	"errors"

	"github.com/felixgeelhaar/mtgate/adapter/api"
	"github.com/felixgeelhaar/mtgate/pkg/config"
)

// ErrNotInitialized is returned by commands run before SetApp.
var ErrNotInitialized = errors.New("app not initialized")

// App holds the CLI application dependencies.
type App struct {
	Config *config.Config
	Client *api.Client
}

// NewApp creates the CLI application. The API client targets the serve
// process at cfg.APIURL.
func NewApp(cfg *config.Config) *App {
	return &App{
		Config: cfg,
		Client: api.NewClient(cfg.APIURL, cfg.APIToken, nil),
	}
}

var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

// RequireClient returns the API client or ErrNotInitialized.
func RequireClient() (*api.Client, error) {
	if app == nil || app.Client == nil {
		return nil, ErrNotInitialized
	}
	return app.Client, nil
}
