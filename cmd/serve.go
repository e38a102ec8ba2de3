package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/ingest"
	"github.com/sells-group/leadsync/internal/suggest"
)

// userHeader carries the already-authenticated acting user.
const userHeader = "X-User-ID"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload and suggestion API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := os.MkdirAll(cfg.Import.TempDir, 0o750); err != nil {
			return eris.Wrap(err, "create upload dir")
		}

		api := &server{
			imports:   ingest.New(st, ingest.FromImportConfig(cfg.Import)),
			suggest:   suggest.New(st, cfg.Suggest.Limit),
			tempDir:   cfg.Import.TempDir,
			maxUpload: int64(cfg.Import.MaxUploadMB) << 20,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(api, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type importer interface {
	ImportFile(ctx context.Context, userID, path string, keep bool) (*ingest.Summary, error)
}

type suggester interface {
	Suggest(ctx context.Context, query string) ([]string, error)
}

// server holds the HTTP handlers. It only moves bytes; all reconciliation
// happens in the engine.
type server struct {
	imports   importer
	suggest   suggester
	tempDir   string
	maxUpload int64
}

func buildRouter(s *server, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/imports", s.handleImport)
	r.Get("/suggestions", s.handleSuggest)
	return r
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close() //nolint:errcheck

	path, err := s.spool(file)
	if err != nil {
		zap.L().Error("spool upload", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "File processing failed")
		return
	}
	// ImportFile removes the document once read; this covers earlier failures.
	defer os.Remove(path) //nolint:errcheck

	summary, err := s.imports.ImportFile(r.Context(), r.Header.Get(userHeader), path, false)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, ingest.ErrMalformedInput):
		writeMessage(w, http.StatusBadRequest, "Invalid JSON format")
	case errors.Is(err, ingest.ErrInvalidSchema):
		writeMessage(w, http.StatusBadRequest, "Invalid JSON structure")
	default:
		zap.L().Error("import failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "File processing failed")
	}
}

// spool copies an upload into the temp dir and returns its path.
func (s *server) spool(src io.Reader) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "upload-*.json")
	if err != nil {
		return "", eris.Wrap(err, "create upload file")
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "write upload file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "close upload file")
	}
	return f.Name(), nil
}

func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	names, err := s.suggest.Suggest(r.Context(), r.URL.Query().Get("q"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string][]string{"suggestions": names})
	case errors.Is(err, suggest.ErrQueryRequired):
		writeMessage(w, http.StatusBadRequest, "Search term is required")
	case errors.Is(err, suggest.ErrNoMatches):
		writeMessage(w, http.StatusNotFound, "No matching data found")
	default:
		zap.L().Error("suggest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Error fetching search suggestions",
			"error":   err.Error(),
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
