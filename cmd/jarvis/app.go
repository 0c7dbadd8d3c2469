package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"jarvis/internal/browser"
	"jarvis/internal/channel"
	"jarvis/internal/config"
	"jarvis/internal/contacts"
	"jarvis/internal/credential"
	"jarvis/internal/dispatch"
	"jarvis/internal/history"
	"jarvis/internal/intent"
	"jarvis/internal/macro"
	"jarvis/internal/metrics"
	"jarvis/internal/tool"
)

// app is the wired capability layer shared by every command.
type app struct {
	cfg        *config.Config
	registry   *tool.Registry
	dispatcher *dispatch.Dispatcher
	sequencer  *macro.Sequencer
	contacts   *contacts.Store
	creds      *credential.Manager
	journal    *history.Journal // nil when history is disabled
	responder  *channel.Responder
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	book := macro.NewBook()
	if err := book.LoadDirectory(cfg.Paths.Macros, logger); err != nil {
		return nil, fmt.Errorf("load macros: %w", err)
	}

	store, err := contacts.Open(cfg.Paths.Contacts, logger)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	a.contacts = store

	var (
		dispatchRecorder dispatch.Recorder
		macroRecorder    macro.Recorder
	)
	if cfg.History.Enabled {
		j, err := history.Open(cfg.Paths.HistoryDB, logger)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		a.journal = j
		dispatchRecorder, macroRecorder = j, j
	}

	runner := tool.ExecRunner{Timeout: seconds(cfg.Tools.CommandTimeoutSeconds)}

	a.creds = credential.NewManager(credential.ManagerConfig{
		Store: credential.NewFileStore(cfg.Paths.Token),
		Refresher: &lazyRefresher{
			clientFile: cfg.Google.ClientSecrets,
		},
		Authorizer: &credential.LoopbackAuthorizer{
			ClientFile: cfg.Google.ClientSecrets,
			Timeout:    seconds(cfg.Google.AuthTimeoutSeconds),
			Open: func(url string) error {
				return tool.OpenURL(context.Background(), runner, runtime.GOOS, url)
			},
			Logger: logger,
		},
		Scopes: catalogScopes(),
		Logger: logger,
	})

	a.registry = tool.NewRegistry(logger)
	a.dispatcher = dispatch.New(dispatch.Config{
		Registry: a.registry,
		Recorder: dispatchRecorder,
		Metrics:  metrics.Collector,
		Logger:   logger,
	})
	a.sequencer = macro.NewSequencer(macro.SequencerConfig{
		Book:       book,
		Dispatcher: a.dispatcher,
		Recorder:   macroRecorder,
		Metrics:    metrics.Collector,
		Logger:     logger,
	})

	deps := tool.Deps{
		Runner:      runner,
		HTTP:        tool.NewHTTPClient(seconds(cfg.Tools.HTTPTimeoutSeconds), logger),
		Contacts:    store,
		Credentials: a.creds,
		RunMacro:    a.sequencer.Handler(),
		Keys: tool.APIKeys{
			Weather:         cfg.Services.WeatherAPIKey,
			News:            cfg.Services.NewsAPIKey,
			WhatsAppToken:   cfg.Services.WhatsApp.AccessToken,
			WhatsAppPhoneID: cfg.Services.WhatsApp.PhoneNumberID,
		},
		ScreenshotDir: cfg.Tools.ScreenshotDir,
		Logger:        logger,
	}
	if cfg.Tools.Browser.Enabled {
		deps.Searcher = browser.NewBridge(browser.BridgeConfig{
			ProfileDir: cfg.Tools.Browser.ProfileDir,
			Headless:   cfg.Tools.Browser.Headless,
			Timeout:    seconds(cfg.Tools.Browser.SearchTimeoutSeconds),
			Logger:     logger,
		})
	}
	if err := a.registry.RegisterAll(tool.Catalog(deps)); err != nil {
		a.Close()
		return nil, fmt.Errorf("register capabilities: %w", err)
	}

	a.responder = channel.NewResponder(channel.ResponderConfig{
		Parser:       &intent.Parser{ArgNames: a.registry.ArgNames},
		Dispatcher:   a.dispatcher,
		Capabilities: a.registry.Names,
		Logger:       logger,
	})
	return a, nil
}

// pruneHistory drops journal entries older than the retention window.
func (a *app) pruneHistory(ctx context.Context) {
	if a.journal == nil || a.cfg.History.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.History.RetentionDays)
	n, err := a.journal.Prune(ctx, cutoff)
	if err != nil {
		logger.Warn("history prune failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("history pruned", "removed", n, "older_than", cutoff.Format(time.DateOnly))
	}
}

func (a *app) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}

// catalogScopes is the scope union of the built-in catalog. The credential
// manager needs it before the real catalog can be built.
func catalogScopes() []string {
	scratch := tool.NewRegistry(logger)
	if err := scratch.RegisterAll(tool.Catalog(tool.Deps{Logger: logger})); err != nil {
		return nil
	}
	return scratch.Scopes()
}

// lazyRefresher reads the OAuth client document on first use so commands
// that never touch Google work without one.
type lazyRefresher struct {
	clientFile string

	mu    sync.Mutex
	inner *credential.OAuthRefresher
}

func (l *lazyRefresher) Refresh(ctx context.Context, t credential.Token) (credential.Token, error) {
	l.mu.Lock()
	if l.inner == nil {
		cfg, err := credential.LoadClientConfig(l.clientFile, t.Scopes)
		if err != nil {
			l.mu.Unlock()
			return credential.Token{}, err
		}
		l.inner = &credential.OAuthRefresher{Config: cfg}
	}
	inner := l.inner
	l.mu.Unlock()
	return inner.Refresh(ctx, t)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// errNoJournal is returned by history commands when the journal is disabled.
var errNoJournal = errors.New("history is disabled (set history.enabled to true)")
