package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server or the capture agent.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where glimpse stores its own data
	DSN string
	// Driver is the relational database driver (sqlite)
	Driver string
	// Version is the current version of server
	Version string

	// Embedding configuration
	EmbeddingProvider   string // GLIMPSE_EMBEDDING_PROVIDER (default: siliconflow)
	EmbeddingModel      string // GLIMPSE_EMBEDDING_MODEL (default: BAAI/bge-m3)
	EmbeddingDimensions int    // GLIMPSE_EMBEDDING_DIMENSIONS (default: 1024)
	EmbeddingAPIKey     string // GLIMPSE_EMBEDDING_API_KEY
	EmbeddingBaseURL    string // GLIMPSE_EMBEDDING_BASE_URL

	// Vector index configuration. When empty, the server falls back to the
	// in-memory index (useful for dev/demo, not durable).
	VectorDSN string // GLIMPSE_VECTOR_DSN (postgres with pgvector)

	// OCR configuration
	TesseractPath string // GLIMPSE_OCR_TESSERACT_PATH (default: tesseract)
	TessdataPath  string // GLIMPSE_OCR_TESSDATA_PATH (default: "")
	OCRLanguages  string // GLIMPSE_OCR_LANGUAGES (default: eng)

	// TikaURL enables document text extraction when set. Empty disables it.
	TikaURL string // GLIMPSE_TIKA_URL

	// Processing pipeline configuration
	ProcessorWorkers int           // GLIMPSE_PROCESSOR_WORKERS (default: 4)
	JobTimeout       time.Duration // GLIMPSE_JOB_TIMEOUT (default: 5m)
	BacklogSchedule  string        // GLIMPSE_BACKLOG_SCHEDULE (default: @every 2h)
	BacklogGrace     time.Duration // GLIMPSE_BACKLOG_GRACE (default: 10m)

	// Capture agent configuration
	ServerURL          string        // GLIMPSE_SERVER_URL (ingest endpoint base URL)
	TickInterval       time.Duration // GLIMPSE_TICK_INTERVAL (default: 1s)
	MinCaptureInterval time.Duration // GLIMPSE_MIN_CAPTURE_INTERVAL (default: 30s)
	HashThreshold      int           // GLIMPSE_HASH_THRESHOLD (default: 10)
	IdleThreshold      time.Duration // GLIMPSE_IDLE_THRESHOLD (default: 2m)
	ExcludedWindows    []string      // GLIMPSE_EXCLUDED_WINDOWS (comma-separated title/app substrings)
	ScreenshotCommand  string        // GLIMPSE_SCREENSHOT_COMMAND
	WindowCommand      string        // GLIMPSE_WINDOW_COMMAND
	IdleCommand        string        // GLIMPSE_IDLE_COMMAND
	MonitorCount       int           // GLIMPSE_MONITOR_COUNT (default: 1)
	UploadMaxAttempts  int           // GLIMPSE_UPLOAD_MAX_ATTEMPTS (default: 8)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from GLIMPSE_* environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("GLIMPSE_EMBEDDING_PROVIDER", "siliconflow")
	p.EmbeddingModel = getEnvOrDefault("GLIMPSE_EMBEDDING_MODEL", "BAAI/bge-m3")
	p.EmbeddingDimensions = getIntEnv("GLIMPSE_EMBEDDING_DIMENSIONS", 1024)
	p.EmbeddingAPIKey = os.Getenv("GLIMPSE_EMBEDDING_API_KEY")
	p.EmbeddingBaseURL = os.Getenv("GLIMPSE_EMBEDDING_BASE_URL")

	p.VectorDSN = os.Getenv("GLIMPSE_VECTOR_DSN")

	p.TesseractPath = getEnvOrDefault("GLIMPSE_OCR_TESSERACT_PATH", "tesseract")
	p.TessdataPath = os.Getenv("GLIMPSE_OCR_TESSDATA_PATH")
	p.OCRLanguages = getEnvOrDefault("GLIMPSE_OCR_LANGUAGES", "eng")
	p.TikaURL = os.Getenv("GLIMPSE_TIKA_URL")

	p.ProcessorWorkers = getIntEnv("GLIMPSE_PROCESSOR_WORKERS", 4)
	p.JobTimeout = getDurationEnv("GLIMPSE_JOB_TIMEOUT", 5*time.Minute)
	p.BacklogSchedule = getEnvOrDefault("GLIMPSE_BACKLOG_SCHEDULE", "@every 2h")
	p.BacklogGrace = getDurationEnv("GLIMPSE_BACKLOG_GRACE", 10*time.Minute)

	p.ServerURL = getEnvOrDefault("GLIMPSE_SERVER_URL", "http://localhost:8081")
	p.TickInterval = getDurationEnv("GLIMPSE_TICK_INTERVAL", time.Second)
	p.MinCaptureInterval = getDurationEnv("GLIMPSE_MIN_CAPTURE_INTERVAL", 30*time.Second)
	p.HashThreshold = getIntEnv("GLIMPSE_HASH_THRESHOLD", 10)
	p.IdleThreshold = getDurationEnv("GLIMPSE_IDLE_THRESHOLD", 2*time.Minute)
	if raw := os.Getenv("GLIMPSE_EXCLUDED_WINDOWS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.ExcludedWindows = append(p.ExcludedWindows, part)
			}
		}
	}
	p.ScreenshotCommand = os.Getenv("GLIMPSE_SCREENSHOT_COMMAND")
	p.WindowCommand = os.Getenv("GLIMPSE_WINDOW_COMMAND")
	p.IdleCommand = os.Getenv("GLIMPSE_IDLE_COMMAND")
	p.MonitorCount = getIntEnv("GLIMPSE_MONITOR_COUNT", 1)
	p.UploadMaxAttempts = getIntEnv("GLIMPSE_UPLOAD_MAX_ATTEMPTS", 8)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/glimpse"
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("glimpse_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.ProcessorWorkers <= 0 {
		p.ProcessorWorkers = 4
	}
	if p.TickInterval <= 0 {
		p.TickInterval = time.Second
	}
	if p.MonitorCount <= 0 {
		p.MonitorCount = 1
	}

	return nil
}
