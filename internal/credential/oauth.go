package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// clientDocument is the client-secrets JSON issued by the provider console.
// Desktop clients are under "installed", web clients under "web".
type clientDocument struct {
	Installed *clientSecrets `json:"installed"`
	Web       *clientSecrets `json:"web"`
}

type clientSecrets struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// LoadClientConfig reads the operator-supplied client document at path.
func LoadClientConfig(path string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read client document %s: %v", ErrCredentialIO, path, err)
	}
	var doc clientDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse client document %s: %v", ErrCredentialIO, path, err)
	}
	cs := doc.Installed
	if cs == nil {
		cs = doc.Web
	}
	if cs == nil || cs.ClientID == "" || cs.AuthURI == "" || cs.TokenURI == "" {
		return nil, fmt.Errorf("%w: client document %s has no installed or web client", ErrCredentialIO, path)
	}
	cfg := &oauth2.Config{
		ClientID:     cs.ClientID,
		ClientSecret: cs.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cs.AuthURI,
			TokenURL: cs.TokenURI,
		},
		Scopes: scopes,
	}
	if len(cs.RedirectURIs) > 0 {
		cfg.RedirectURL = cs.RedirectURIs[0]
	}
	return cfg, nil
}

func fromOAuth2(t *oauth2.Token, fallbackScopes []string) Token {
	out := Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		Scopes:       fallbackScopes,
	}
	if granted, ok := t.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		out.Scopes = strings.Fields(granted)
	}
	return out
}

// OAuthRefresher refreshes through the provider's token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

func (r *OAuthRefresher) Refresh(ctx context.Context, t Token) (Token, error) {
	if t.RefreshToken == "" {
		return Token{}, errors.New("no refresh token")
	}
	// A past expiry makes the token source go to the endpoint.
	src := r.Config.TokenSource(ctx, &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       time.Unix(1, 0),
	})
	fresh, err := src.Token()
	if err != nil {
		return Token{}, err
	}
	return fromOAuth2(fresh, t.Scopes), nil
}

// LoopbackAuthorizer runs the authorization-code flow with PKCE against a
// one-shot callback server on 127.0.0.1.
type LoopbackAuthorizer struct {
	ClientFile string
	Timeout    time.Duration
	// Open shows the consent URL to the user, usually by starting a browser.
	// When nil the URL is only logged.
	Open   func(url string) error
	Logger *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

func (a *LoopbackAuthorizer) Authorize(ctx context.Context, scopes []string) (Token, error) {
	cfg, err := LoadClientConfig(a.ClientFile, scopes)
	if err != nil {
		return Token{}, err
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Token{}, fmt.Errorf("%w: callback listener: %v", ErrAuthorizationDenied, err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrAuthorizationDenied, q.Get("error"))
			fmt.Fprintln(w, "Authorization was not granted. You can close this window.")
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)
	logger.Info("open this URL to authorize", "url", authURL)
	if a.Open != nil {
		if err := a.Open(authURL); err != nil {
			logger.Warn("could not open browser", "error", err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-timer.C:
		return Token{}, fmt.Errorf("%w: no response within %s", ErrAuthorizationDenied, timeout)
	case <-ctx.Done():
		return Token{}, fmt.Errorf("%w: %v", ErrAuthorizationDenied, ctx.Err())
	}
	if res.err != nil {
		return Token{}, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Token{}, fmt.Errorf("%w: code exchange: %v", ErrAuthorizationDenied, err)
	}
	return fromOAuth2(tok, scopes), nil
}
