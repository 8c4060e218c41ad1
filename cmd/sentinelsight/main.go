package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/api"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/auth"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/config"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/database"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/detection"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/notify"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/pipeline"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/rules"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/snapshot"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		envF    = flag.String("env", ".env", "Path to the optional .env file")
		addrF   = flag.String("addr", "", "HTTP listen address (overrides config)")
		debugF  = flag.Bool("debug", false, "Log with source locations")
	)
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetPrefix("[sentinelsight] ")
	log.SetFlags(log.Ltime)
	if *debugF {
		log.SetFlags(log.Ltime | log.Lshortfile)
	}

	if err := godotenv.Load(*envF); err == nil {
		log.Printf("[Main] Loaded environment from %s", *envF)
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf("[Main] Failed to load configuration: %v", err)
	}
	if *addrF != "" {
		cfg.HTTP.Addr = *addrF
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("[Main] Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatalf("[Main] Failed to run migrations: %v", err)
	}

	m := metrics.New()

	detector := detection.NewClient(detection.ClientConfig{
		Endpoint:            cfg.Inference.Endpoint,
		ConfidenceThreshold: cfg.Inference.ConfidenceThreshold,
		Timeout:             cfg.InferenceTimeout(),
		ClassesFilter:       cfg.Inference.ClassesFilter,
	})
	m.SetLatencyFunc(detector.AvgLatencyMs)

	snapshots, err := buildSnapshotWriter(cfg)
	if err != nil {
		log.Fatalf("[Main] Failed to set up snapshot storage: %v", err)
	}

	hub := ws.NewEventHub()
	notifiers := []rules.Notifier{hub}

	var mqttPub *notify.MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPub, err = notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			ClientID:    "sentinelsight",
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, m)
		if err != nil {
			// The pipeline is useful without the broker; keep going.
			log.Printf("[Main] MQTT disabled: %v", err)
		} else {
			notifiers = append(notifiers, mqttPub)
			defer mqttPub.Close()
		}
	}

	engine := rules.NewEngine(db, db, snapshots, detector, cfg.RuleSource(), m, notifiers...)

	statusSink := &cameraStatusFanout{db: db, pub: mqttPub, last: make(map[int64]model.CameraStatus)}
	ingest := pipeline.NewIngestor(&pipeline.FFmpegSource{FPS: cfg.System.FPSTarget}, statusSink,
		pipeline.IngestorConfig{QueueSize: cfg.System.FrameQueueSize}, m)
	coord := pipeline.NewCoordinator(ingest, detector, engine, db, pipeline.CoordinatorConfig{}, m)

	if err := coord.StartAll(); err != nil {
		log.Printf("[Main] Failed to start camera pipelines: %v", err)
	}

	go retentionLoop(db, cfg.System.SnapshotRetentionDays)

	authenticator := auth.NewAuthenticator(auth.Config{
		Username:  cfg.HTTP.AdminUser,
		Password:  cfg.HTTP.AdminPass,
		JWTSecret: cfg.HTTP.JWTSecret,
	})

	var broker api.Broker
	if mqttPub != nil {
		broker = mqttPub
	}
	server := api.New(db, coord, detector, broker, hub, m, authenticator, cfg.System.SnapshotDir)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[Main] HTTP server listening on %s", cfg.HTTP.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Printf("[Main] Received %s, shutting down", sig)
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Main] HTTP server failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[Main] HTTP shutdown: %v", err)
	}

	coord.StopAll()
	ingest.Close()
	log.Printf("[Main] Shutdown complete")
}

func buildSnapshotWriter(cfg *config.Config) (rules.SnapshotWriter, error) {
	if cfg.Snapshots.Backend == "minio" {
		return snapshot.NewMinioWriter(snapshot.MinioConfig{
			Endpoint:  cfg.Snapshots.MinioEndpoint,
			AccessKey: cfg.Snapshots.MinioAccessKey,
			SecretKey: cfg.Snapshots.MinioSecretKey,
			Bucket:    cfg.Snapshots.MinioBucket,
			UseSSL:    cfg.Snapshots.MinioUseSSL,
		})
	}
	return snapshot.NewDirWriter(cfg.System.SnapshotDir)
}

// cameraStatusFanout records camera status in the database and republishes
// status transitions (not periodic fps refreshes) to MQTT.
type cameraStatusFanout struct {
	db  *database.Database
	pub *notify.MQTTPublisher

	mu   sync.Mutex
	last map[int64]model.CameraStatus
}

func (s *cameraStatusFanout) UpdateStatus(cameraID int64, status model.CameraStatus, fps float64) error {
	if s.pub != nil {
		s.mu.Lock()
		changed := s.last[cameraID] != status
		s.last[cameraID] = status
		s.mu.Unlock()
		if changed {
			s.pub.PublishCameraStatus(cameraID, status, fps)
		}
	}
	return s.db.UpdateStatus(cameraID, status, fps)
}

// retentionLoop deletes events past the retention window once a day.
func retentionLoop(db *database.Database, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		n, err := db.DeleteOldEvents(retentionDays)
		if err != nil {
			log.Printf("[Main] Event retention sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("[Main] Deleted %d events past retention", n)
		}
	}
}
