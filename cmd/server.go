package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/ferry/internal/download"
	"github.com/surge-downloader/ferry/internal/engine/events"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/utils"
)

const (
	defaultPort     = 1700
	shutdownTimeout = 10 * time.Second
	wsWriteTimeout  = 5 * time.Second
	eventBuffer     = 64
)

// DownloadRequest is the body of POST /download
type DownloadRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`
}

type actionResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Server exposes a download.Manager over HTTP
type Server struct {
	mgr              *download.Manager
	port             int
	outputDir        string
	rejectDuplicates bool
	progressEvery    time.Duration
	upgrader         websocket.Upgrader
	log              zerolog.Logger
}

func NewServer(mgr *download.Manager, port int, outputDir string) *Server {
	return &Server{
		mgr:              mgr,
		port:             port,
		outputDir:        outputDir,
		rejectDuplicates: globalSettings.General.WarnOnDuplicate,
		progressEvery:    time.Second,
		upgrader: websocket.Upgrader{
			// Only local clients can reach 127.0.0.1
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: utils.Logger("server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/download", s.handleDownload)
	mux.HandleFunc("/pause", s.handleAction("paused", s.mgr.Pause))
	mux.HandleFunc("/resume", s.handleAction("resumed", s.mgr.Resume))
	mux.HandleFunc("/cancel", s.handleAction("cancelled", s.mgr.Cancel))
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/events", s.handleEvents)
	return corsMiddleware(mux)
}

// corsMiddleware adds CORS headers for browser extension requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps manager and engine errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, download.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidTransition), errors.Is(err, download.ErrDestInUse):
		code = http.StatusConflict
	case errors.Is(err, download.ErrShuttingDown):
		code = http.StatusServiceUnavailable
	case types.IsNetworkError(err), types.IsProtocolError(err):
		code = http.StatusBadGateway
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"port":    s.port,
		"version": Version,
		"active":  s.mgr.ActiveCount(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleStatus(w, r)
	case http.MethodPost:
		s.handleAdd(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus answers from memory first, then from the session store
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, s.mgr.List())
		return
	}

	st, err := s.mgr.Status(id)
	if err == nil {
		writeJSON(w, http.StatusOK, st)
		return
	}

	rec, dbErr := state.GetSession(id)
	if dbErr != nil || rec == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusFromRecord(rec))
}

func statusFromRecord(rec *state.Session) download.Status {
	st := download.Status{
		ID:         rec.ID,
		URL:        rec.URL,
		Filename:   rec.Filename,
		DestPath:   rec.DestPath,
		Status:     rec.Status,
		TotalSize:  rec.TotalSize,
		Downloaded: rec.ResumeOffset,
		Error:      rec.Error,
	}
	if rec.Status == state.StatusCompleted {
		st.Progress = 100
		if rec.TotalSize > 0 {
			st.Downloaded = uint64(rec.TotalSize)
		}
	} else if rec.TotalSize > 0 {
		st.Progress = float64(rec.ResumeOffset) * 100 / float64(rec.TotalSize)
	}
	return st
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Path, "..") || strings.Contains(req.Filename, "..") {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(req.Filename, `/\`) {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if s.rejectDuplicates && s.mgr.HasURL(req.URL) {
		http.Error(w, "URL is already downloading", http.StatusConflict)
		return
	}

	dir := req.Path
	if dir == "" {
		dir = s.outputDir
	}

	s.log.Debug().Str("url", req.URL).Str("dir", dir).Msg("download request")
	id, err := s.mgr.Add(r.Context(), req.URL, dir, req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "downloading", ID: id, Message: "Download started"})
}

// handleAction wraps a Manager command taking a session id
func (s *Server) handleAction(done string, fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", http.StatusBadRequest)
			return
		}
		if err := fn(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{Status: done, ID: id})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}
	if err := s.mgr.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "deleted", ID: id})
}

// handleEvents streams lifecycle events as JSON envelopes. With ?id= it
// follows one session and forwards every progress snapshot; without it,
// every bus message goes out, including the manager's progress summaries.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	var (
		snapshots   <-chan types.Progress
		unsubscribe = func() {}
	)
	if id != "" {
		obs, err := s.mgr.Observer(id)
		if err != nil {
			writeError(w, err)
			return
		}
		snapshots, unsubscribe = obs.Subscribe()
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything we use; reading surfaces its close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	lifecycle, unsub := s.mgr.Events(eventBuffer)
	defer unsub()

	send := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(events.Wrap(msg)); err != nil {
			s.log.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			return

		case msg, ok := <-lifecycle:
			if !ok {
				return
			}
			if id != "" {
				// The observer subscription already streams this session's progress
				if _, ok := msg.(events.ProgressMsg); ok || events.DownloadID(msg) != id {
					continue
				}
			}
			if !send(msg) {
				return
			}

		case p, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			if !send(progressMsg(id, p)) {
				return
			}
		}
	}
}

func progressMsg(id string, p types.Progress) events.ProgressMsg {
	total := int64(-1)
	if n, ok := p.Target.Get(); ok {
		total = int64(n)
	}
	return events.ProgressMsg{
		DownloadID: id,
		Downloaded: p.Value,
		Total:      total,
		Speed:      p.Rate,
		TimeLeft:   p.TimeLeft,
		Message:    p.Message,
	}
}

// restoreSessions marks sessions a previous server left running as paused
// and registers every paused or failed one, so they can be resumed by id
func restoreSessions(mgr *download.Manager) error {
	if err := state.MarkInterrupted(); err != nil {
		return err
	}
	recs, err := state.ListSessions()
	if err != nil {
		return err
	}
	n := 0
	for _, rec := range recs {
		if rec.Status == state.StatusPaused || rec.Status == state.StatusFailed {
			mgr.Restore(rec)
			n++
		}
	}
	utils.Debug("restored %d sessions", n)
	return nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run ferry as a background daemon",
	Long: `Start a headless ferry daemon. It listens on a local port for
commands from 'ferry add', 'ferry pause' and the other subcommands, and
streams events over a websocket at /events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locked, err := AcquireLock()
		if err != nil {
			return err
		}
		if !locked {
			return errors.New("ferry server is already running")
		}
		defer ReleaseLock()

		portFlag, _ := cmd.Flags().GetInt("port")
		outFlag, _ := cmd.Flags().GetString("output")

		var (
			port int
			ln   net.Listener
		)
		if portFlag > 0 {
			port = portFlag
			ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return fmt.Errorf("could not bind to port %d: %w", port, err)
			}
		} else {
			port, ln = findAvailablePort(defaultPort)
			if ln == nil {
				return errors.New("could not find an available port")
			}
		}

		if err := saveActivePort(port); err != nil {
			ln.Close()
			return fmt.Errorf("failed to write port file: %w", err)
		}
		defer removeActivePort()

		mgr := download.NewManager(globalSettings.ToRuntimeConfig(), download.WithStore(download.StateStore()))
		if err := restoreSessions(mgr); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not restore sessions: %v\n", err)
		}

		return serve(cmd.Context(), ln, NewServer(mgr, port, defaultOutputDir(outFlag)), mgr)
	},
}

// serve runs the HTTP server until a signal arrives or it fails, then
// pauses every session so it can be resumed later
func serve(ctx context.Context, ln net.Listener, s *Server, mgr *download.Manager) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.PublishProgress(gctx, s.progressEvery)
		return nil
	})
	g.Go(func() error {
		fmt.Printf("ferry %s listening on 127.0.0.1:%d\n", Version, s.port)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, mgr.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func init() {
	serverCmd.Flags().IntP("port", "p", 0, fmt.Sprintf("Port to listen on (default: %d or the next free one)", defaultPort))
	serverCmd.Flags().StringP("output", "o", "", "Default output directory")
	rootCmd.AddCommand(serverCmd)
}
