// Package server - Haupt-Router und Server-Setup fuer den Prognose-Service
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/logutil"
	"github.com/nehal119/merlion-testing/store"
	"github.com/nehal119/merlion-testing/version"
)

var mode string = gin.ReleaseMode

// Server verwaltet den HTTP-Server, die Modellablage und den Cache
// geladener Modelle.
type Server struct {
	addr      net.Addr
	modelsDir string
	db        *store.Store
	loaded    *modelCache
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	tlds := []string{
		"localhost",
		"local",
		"internal",
	}

	// Pruefe ob der Host eine lokale TLD hat
	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Merlion is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Merlion is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Modellverwaltung
	r.HEAD("/api/models", s.ListHandler)
	r.GET("/api/models", s.ListHandler)
	r.POST("/api/show", s.ShowHandler)
	r.DELETE("/api/models/:model", s.DeleteHandler)

	// Training und Prognose
	r.POST("/api/train", s.TrainHandler)
	r.POST("/api/forecast", s.ForecastHandler)

	return r, nil
}

// NewServer baut einen Server ueber dem Model-Verzeichnis und der
// Laufdatenbank. Beide werden bei Bedarf angelegt.
func NewServer(addr net.Addr, modelsDir, dbPath string) (*Server, error) {
	if modelsDir == "" {
		modelsDir = envconfig.Models()
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:      addr,
		modelsDir: modelsDir,
		db:        db,
		loaded:    newModelCache(),
	}, nil
}

// Close gibt geladene Modelle frei und schliesst die Datenbank.
func (s *Server) Close() error {
	s.loaded.evictAll()
	return s.db.Close()
}

// modelPath ist der Checkpoint-Pfad eines Modellnamens.
func (s *Server) modelPath(name string) string {
	return filepath.Join(s.modelsDir, name+".mcf")
}

// Serve startet den HTTP-Server auf dem Listener und blockiert bis
// SIGINT oder SIGTERM eintrifft.
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	if n := envconfig.NumThreads(); n > 0 {
		runtime.GOMAXPROCS(int(n))
	}

	s, err := NewServer(ln.Addr(), envconfig.Models(), envconfig.Database())
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())
	defer done()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler: h,
	}

	// Auf Ctrl+C reagieren und geladene Modelle freigeben
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		s.loaded.evictAll()
		done()
	}()

	err = srvr.Serve(ln)
	// Wird der Server vom Signal-Handler geschlossen, auf den Kontext
	// warten statt den Fehler durchzureichen
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
