package tool

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"jarvis/internal/credential"
	"jarvis/internal/domain"
)

// Contacts is the contact book the messaging capabilities use.
type Contacts interface {
	Lookup(name string) (string, error)
	Add(name, address string) error
}

// Credentials hands out delegated-access tokens.
type Credentials interface {
	Acquire(ctx context.Context, required []string) (credential.Token, error)
}

// Searcher finds the top web result for a query.
type Searcher interface {
	TopResult(ctx context.Context, query string) (string, error)
}

// APIKeys holds keys for the third-party information services.
type APIKeys struct {
	Weather         string
	News            string
	WhatsAppToken   string
	WhatsAppPhoneID string
}

// Endpoints are the upstream base URLs. Zero fields use the public services.
type Endpoints struct {
	Weather  string
	News     string
	Stock    string
	IP       string
	Gmail    string
	WhatsApp string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Weather == "" {
		e.Weather = "https://api.openweathermap.org/data/2.5/weather"
	}
	if e.News == "" {
		e.News = "https://newsapi.org/v2/top-headlines"
	}
	if e.Stock == "" {
		e.Stock = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if e.IP == "" {
		e.IP = "https://api.ipify.org"
	}
	if e.Gmail == "" {
		e.Gmail = "https://gmail.googleapis.com/"
	}
	if e.WhatsApp == "" {
		e.WhatsApp = "https://graph.facebook.com/v21.0"
	}
	return e
}

// Deps is everything the built-in capabilities need.
type Deps struct {
	Runner      Runner
	HTTP        *HTTPClient
	Contacts    Contacts
	Credentials Credentials
	Searcher    Searcher
	// RunMacro is the run_macro handler, supplied by the macro sequencer.
	RunMacro  domain.Handler
	Keys      APIKeys
	Endpoints Endpoints
	// GOOS selects OS commands. Defaults to runtime.GOOS.
	GOOS string
	// ScreenshotDir receives relative screenshot filenames.
	ScreenshotDir string
	// Sensors reads CPU, RAM and battery. Defaults to HostSensors.
	Sensors Sensors
	// Speed runs internet speed tests. Defaults to Speedtest.
	Speed SpeedTester
	// TrashDir is the freedesktop trash on Linux.
	TrashDir string
	Now      func() time.Time
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Runner == nil {
		d.Runner = ExecRunner{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HTTP == nil {
		d.HTTP = NewHTTPClient(0, d.Logger)
	}
	if d.GOOS == "" {
		d.GOOS = runtime.GOOS
	}
	if d.Sensors == nil {
		d.Sensors = HostSensors{}
	}
	if d.Speed == nil {
		d.Speed = Speedtest{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Endpoints = d.Endpoints.withDefaults()
	return d
}

// Catalog returns the built-in capabilities. run_macro is included only when
// deps.RunMacro is set.
func Catalog(deps Deps) []domain.Descriptor {
	deps = deps.withDefaults()
	var out []domain.Descriptor
	out = append(out, systemCapabilities(deps)...)
	out = append(out, mediaCapabilities(deps)...)
	out = append(out, webCapabilities(deps)...)
	out = append(out, informationCapabilities(deps)...)
	out = append(out, communicationCapabilities(deps)...)
	if deps.RunMacro != nil {
		out = append(out, domain.Descriptor{
			Name:        "run_macro",
			Description: "Run a saved macro: a named sequence of actions executed in order.",
			Args: []domain.ArgSpec{
				{Name: "macro_name", Kind: domain.KindString, Required: true, Description: "Name of the macro to run"},
			},
			Handler: deps.RunMacro,
		})
	}
	return out
}
