package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
	"github.com/tartampluch/photo-time-sleuth/internal/locale"
	"github.com/tartampluch/photo-time-sleuth/internal/photo"
	"github.com/tartampluch/photo-time-sleuth/internal/secret"
)

//go:embed web
var webFS embed.FS

// DateGuesser asks an external service for the date of a photo.
type DateGuesser interface {
	EstimateDate(ctx context.Context, image []byte, mimeType, apiKey string) (string, error)
}

// Server serves the photo tagging UI and its JSON API.
// Every handler works from the Settings captured at construction.
type Server struct {
	Settings config.Settings
	Photos   photo.Store
	Keys     secret.KeyStore
	AI       DateGuesser
	Catalog  *locale.Catalog
	Calendar *engine.CalendarExporter

	// calendar keeps the last rendered feed; reads are lock-free.
	calendar atomic.Pointer[cacheItem]
}

// New wires a server over the given collaborators.
func New(s config.Settings, photos photo.Store, keys secret.KeyStore, ai DateGuesser, cat *locale.Catalog, clock engine.Clock) *Server {
	return &Server{
		Settings: s,
		Photos:   photos,
		Keys:     keys,
		AI:       ai,
		Catalog:  cat,
		Calendar: &engine.CalendarExporter{Clock: clock},
	}
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	static, _ := fs.Sub(webFS, config.StaticDir) // constant, valid path

	mux := http.NewServeMux()
	mux.HandleFunc(config.RouteIndex, s.handleIndex)
	mux.Handle(config.RouteStatic, http.FileServerFS(static))
	mux.HandleFunc(config.RouteFolderPath, s.handleFolderPath)
	mux.HandleFunc(config.RoutePhotos, s.handlePhotos)
	mux.HandleFunc(config.RouteNamesAndBdays, s.handleNamesAndBdays)
	mux.HandleFunc(config.RouteGetAgeDate, s.handleGetAgeDate)
	mux.HandleFunc(config.RoutePhotoDate, s.handlePhotoDate)
	mux.HandleFunc(config.RouteUpdateMetadata, s.handleUpdateMetadata)
	mux.HandleFunc(config.RouteAIDate, s.handleAIDate)
	mux.HandleFunc(config.RouteGetAPIKey, s.handleGetAPIKey)
	mux.HandleFunc(config.RouteSaveAPIKey, s.handleSaveAPIKey)
	mux.HandleFunc(config.RouteCalendar, s.handleCalendar)
	mux.HandleFunc(config.RoutePhotoFile, s.handlePhotoFile)

	return withRequestLog(mux)
}

// Start binds the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Settings.Addr())
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyAddr, ln.Addr().String(),
			config.LogKeyURL, ServeURL(s.Settings.Port),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// ServeURL is the address other devices on the LAN can open.
func ServeURL(port int) string {
	return fmt.Sprintf(config.FormatServeURL, LocalIP(), port)
}

// LocalIP returns the first 192.168.x.x interface address, or localhost.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return config.LocalhostName
	}
	return pickLANAddr(addrs)
}

func pickLANAddr(addrs []net.Addr) string {
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil && strings.HasPrefix(ip4.String(), config.LANAddrPrefix) {
			return ip4.String()
		}
	}
	return config.LocalhostName
}
