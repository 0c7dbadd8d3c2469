package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"jarvis/internal/domain"
	"jarvis/internal/history"
	"jarvis/internal/metrics"
)

const wsMaxFrame = 1 << 20

// MacroRunner runs a named macro to completion.
type MacroRunner interface {
	Run(ctx context.Context, name string) (*domain.Report, error)
}

// WSRequest is one frame from the upstream engine. Exactly one of Capability,
// Macro or Text is set.
type WSRequest struct {
	ID         string         `json:"id,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Macro      string         `json:"macro,omitempty"`
	Text       string         `json:"text,omitempty"`
}

// WSReply answers one WSRequest and echoes its ID.
type WSReply struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"` // "result", "report", "results" or "error"
	Result  *domain.Result  `json:"result,omitempty"`
	Report  *domain.Report  `json:"report,omitempty"`
	Results []domain.Result `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// WebSocket serves structured intents to an upstream engine. Requests on one
// connection are handled in arrival order.
type WebSocket struct {
	addr  string
	path  string
	token string

	dispatcher Dispatcher
	macros     MacroRunner
	responder  *Responder
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

type WebSocketConfig struct {
	Addr string
	Path string // default /ws
	// Token must be presented as a bearer token or the token query parameter.
	Token      string
	Dispatcher Dispatcher
	Macros     MacroRunner
	Responder  *Responder
	Logger     *slog.Logger
}

func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		addr:       cfg.Addr,
		path:       cfg.Path,
		token:      cfg.Token,
		dispatcher: cfg.Dispatcher,
		macros:     cfg.Macros,
		responder:  cfg.Responder,
		logger:     logger,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		conns:      make(map[*websocket.Conn]struct{}),
	}
}

func (ws *WebSocket) Name() string { return "websocket" }

// Handler serves the endpoint path.
func (ws *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleUpgrade)
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (ws *WebSocket) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ws.addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	ws.logger.Info("websocket endpoint listening", "addr", ws.addr, "path", ws.path)

	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("websocket server: %w", err)
	}
}

func (ws *WebSocket) authorized(r *http.Request) bool {
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		got = strings.TrimPrefix(h, "Bearer ")
	}
	return ws.token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(ws.token)) == 1
}

func (ws *WebSocket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !ws.authorized(r) {
		ws.logger.Warn("websocket connection refused", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(wsMaxFrame)

	ws.mu.Lock()
	ws.conns[conn] = struct{}{}
	ws.mu.Unlock()
	ws.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		ws.mu.Lock()
		delete(ws.conns, conn)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	ctx := history.WithSource(r.Context(), ws.Name())
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}
		reply := ws.serve(ctx, frame)
		if err := conn.WriteJSON(reply); err != nil {
			ws.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
}

// serve handles one frame. ctx carries the source tag.
func (ws *WebSocket) serve(ctx context.Context, frame []byte) WSReply {
	var req WSRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return WSReply{Type: "error", Error: "invalid JSON: " + err.Error()}
	}
	set := 0
	for _, v := range []string{req.Capability, req.Macro, req.Text} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return WSReply{ID: req.ID, Type: "error", Error: "exactly one of capability, macro or text is required"}
	}

	switch {
	case req.Capability != "":
		res := ws.dispatcher.Dispatch(ctx, domain.Intent{Capability: req.Capability, Args: req.Args})
		return WSReply{ID: req.ID, Type: "result", Result: &res}
	case req.Macro != "":
		if ws.macros == nil {
			return WSReply{ID: req.ID, Type: "error", Error: "macros are not available"}
		}
		report, err := ws.macros.Run(ctx, req.Macro)
		if err != nil {
			return WSReply{ID: req.ID, Type: "error", Error: err.Error()}
		}
		return WSReply{ID: req.ID, Type: "report", Report: report}
	default:
		results, err := ws.responder.Handle(ctx, ws.Name(), req.Text)
		if err != nil {
			return WSReply{ID: req.ID, Type: "error", Error: ParseErrorMessage(err)}
		}
		return WSReply{ID: req.ID, Type: "results", Results: results}
	}
}

func (ws *WebSocket) closeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for conn := range ws.conns {
		conn.Close()
		delete(ws.conns, conn)
	}
}
