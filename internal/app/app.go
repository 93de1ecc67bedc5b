// Package app loads configuration from the environment and wires the
// process together: logging router, map source, orchestrator and the HTTP
// server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/loadsignal"
	"github.com/iits-consulting/workadventure/internal/mapsource"
	"github.com/iits-consulting/workadventure/internal/mesh"
	servernet "github.com/iits-consulting/workadventure/internal/net"
	"github.com/iits-consulting/workadventure/internal/net/ws"
	"github.com/iits-consulting/workadventure/internal/session"
	"github.com/iits-consulting/workadventure/internal/token"
	"github.com/iits-consulting/workadventure/internal/world"
	"github.com/iits-consulting/workadventure/logging"
	loggingSinks "github.com/iits-consulting/workadventure/logging/sinks"
)

// Config is read from WA_-prefixed environment variables.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	// MapServiceURL selects the HTTP map source; when empty, room
	// definitions come from YAML files under MapDir.
	MapServiceURL string `envconfig:"MAP_SERVICE_URL"`
	MapDir        string `envconfig:"MAP_DIR" default:"maps"`

	AdminAPIToken string `envconfig:"ADMIN_API_TOKEN"`

	MeshSecret        string        `envconfig:"MESH_SECRET"`
	MeshCredentialTTL time.Duration `envconfig:"MESH_CREDENTIAL_TTL"`

	ConferenceSecret   string `envconfig:"CONFERENCE_SECRET"`
	ConferenceIssuer   string `envconfig:"CONFERENCE_ISSUER"`
	ConferenceAudience string `envconfig:"CONFERENCE_AUDIENCE" default:"jitsi"`
	ConferenceURL      string `envconfig:"CONFERENCE_URL"`

	MaxPerRoom    int  `envconfig:"MAX_PER_ROOM"`
	AdmitWhenFull bool `envconfig:"ADMIT_WHEN_FULL"`

	CellSize        float64 `envconfig:"CELL_SIZE"`
	MinimumDistance float64 `envconfig:"MINIMUM_DISTANCE"`
	GroupRadius     float64 `envconfig:"GROUP_RADIUS"`

	ShedThreshold      float64       `envconfig:"SHED_THRESHOLD"`
	BanGraceDelay      time.Duration `envconfig:"BAN_GRACE_DELAY"`
	LoadSampleInterval time.Duration `envconfig:"LOAD_SAMPLE_INTERVAL" default:"2s"`

	LogFile     string `envconfig:"LOG_FILE"`
	LogSeverity string `envconfig:"LOG_SEVERITY" default:"info"`
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context) error {
	var cfg Config
	if err := envconfig.Process("wa", &cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = parseSeverity(cfg.LogSeverity)

	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer file.Close()
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "ndjson",
			Sink: loggingSinks.NewNDJSON(file, logConfig.NDJSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(nil, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("constructing logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			log.Printf("failed to close logging router: %v", cerr)
		}
	}()

	var source world.ConfigSource
	if cfg.MapServiceURL != "" {
		source = mapsource.NewHTTPSource(cfg.MapServiceURL, nil)
	} else {
		source = mapsource.NewDirSource(cfg.MapDir)
	}

	loadCtx, cancelLoad := context.WithCancel(ctx)
	defer cancelLoad()

	orch := session.NewOrchestrator(session.Config{
		Defaults: world.RoomConfig{
			MaxParticipants: cfg.MaxPerRoom,
			AdmitWhenFull:   cfg.AdmitWhenFull,
			CellSize:        cfg.CellSize,
			MinimumDistance: cfg.MinimumDistance,
			GroupRadius:     cfg.GroupRadius,
		},
		ShedThreshold: cfg.ShedThreshold,
		BanGraceDelay: cfg.BanGraceDelay,
	}, session.Deps{
		Source:      source,
		Credentials: mesh.NewIssuer(cfg.MeshSecret, cfg.MeshCredentialTTL),
		Tokens:      token.NewIssuer(cfg.ConferenceSecret, cfg.ConferenceIssuer, cfg.ConferenceAudience, cfg.ConferenceURL),
		Load:        loadsignal.NewCPU(loadCtx, cfg.LoadSampleInterval),
		Publisher:   router,
	})

	wsHandler := ws.NewHandler(orch, ws.HandlerConfig{Logger: log.Default()})
	handler := servernet.NewHTTPHandler(orch, wsHandler, router, servernet.HTTPHandlerConfig{
		AdminToken: cfg.AdminAPIToken,
		Logger:     log.Default(),
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	log.Printf("server listening on %s (protocol v%d)", srv.Addr, workadventure.ProtocolVersion)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

func parseSeverity(value string) logging.Severity {
	switch value {
	case "debug":
		return logging.SeverityDebug
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
