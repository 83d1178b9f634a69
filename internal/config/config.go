package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     int
	CamerasPort              int
	Password                 string
	CameraNames              map[string]string // camera IP -> name
	FrontCameras             []string          // cameras whose image is mirrored
	ImageDirectory           string
	ImageBufferLimit         int
	ImageBufferFlushInterval int
	ProcessingInterval       int   // process every Nth frame (1 = every frame)
	MaxImageDirectorySize    int64 // GB
	LogDirectory             string
	LogLevel                 string
	DatabasePath             string

	Model   ModelConfig
	Alert   AlertConfig
	Capture CaptureConfig
	Depth   DepthConfig
}

// ModelConfig describes the detection model every camera evaluator loads.
type ModelConfig struct {
	Backend     string
	Path        string
	ConfigPath  string
	LabelsPath  string
	Layout      string
	InputWidth  int
	InputHeight int
	Mean        float64
	Scale       float64
	Threads     int
	Accelerated bool
	Threshold   float64
	LoadOnStart bool
}

type AlertConfig struct {
	Threshold float64
	Cycle     time.Duration
	EdgeEvery time.Duration
}

// DepthConfig lists cameras that send depth in the alpha channel and the
// settings of the depth obstacle scan.
type DepthConfig struct {
	Cameras []string
	Step    int // pixels between compared samples
	Jump    int // depth increase that marks an obstacle
}

type CaptureConfig struct {
	Device int // -1 disables the local capture device
	Name   string
	FPS    int
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                     getEnvAsInt("PORT", 8080),
		CamerasPort:              getEnvAsInt("CAMERAS_PORT", 8081),
		Password:                 getEnv("PASSWORD", "obstacle"),
		CameraNames:              getEnvAsMap("CAMERA_NAMES"),
		FrontCameras:             getEnvAsList("FRONT_CAMERAS"),
		ImageDirectory:           getEnv("IMAGE_DIR", filepath.Join(".", "images")),
		ImageBufferLimit:         getEnvAsInt("BUFFER_LIMIT", 7),
		ImageBufferFlushInterval: getEnvAsInt("FLUSH_INTERVAL", 30),
		ProcessingInterval:       getEnvAsInt("PROCESSING_INTERVAL", 3),
		MaxImageDirectorySize:    getEnvAsInt64("MAX_IMAGE_DIRECTORY_SIZE", 4),
		LogDirectory:             getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DatabasePath:             getEnv("DATABASE_PATH", filepath.Join(".", "obstaclecam.db")),
		Model: ModelConfig{
			Backend:     getEnv("MODEL_BACKEND", "tflite"),
			Path:        getEnv("MODEL_PATH", filepath.Join(".", "models", "obstacle_detector.tflite")),
			ConfigPath:  getEnv("MODEL_CONFIG_PATH", ""),
			LabelsPath:  getEnv("LABELS_PATH", ""),
			Layout:      getEnv("MODEL_LAYOUT", "tflite_ssd"),
			InputWidth:  getEnvAsInt("MODEL_INPUT_WIDTH", 320),
			InputHeight: getEnvAsInt("MODEL_INPUT_HEIGHT", 240),
			Mean:        getEnvAsFloat("MODEL_MEAN", 127.5),
			Scale:       getEnvAsFloat("MODEL_SCALE", 1.0/127.5),
			Threads:     getEnvAsInt("MODEL_THREADS", 2),
			Accelerated: getEnvAsBool("MODEL_ACCELERATED", true),
			Threshold:   getEnvAsFloat("EVAL_THRESHOLD", 0.5),
			LoadOnStart: getEnvAsBool("MODEL_LOAD_ON_START", true),
		},
		Alert: AlertConfig{
			Threshold: getEnvAsFloat("ALERT_THRESHOLD", 0.3),
			Cycle:     getEnvAsDuration("ALERT_CYCLE", 500*time.Millisecond),
			EdgeEvery: getEnvAsDuration("ALERT_EDGE_EVERY", time.Minute),
		},
		Capture: CaptureConfig{
			Device: getEnvAsInt("CAPTURE_DEVICE", -1),
			Name:   getEnv("CAPTURE_NAME", "local"),
			FPS:    getEnvAsInt("CAPTURE_FPS", 10),
		},
		Depth: DepthConfig{
			Cameras: getEnvAsList("DEPTH_CAMERAS"),
			Step:    getEnvAsInt("DEPTH_STEP", 10),
			Jump:    getEnvAsInt("DEPTH_JUMP", 100),
		},
	}
}

// IsFrontCamera reports whether the named camera faces the user.
func (c *Config) IsFrontCamera(camera string) bool {
	for _, name := range c.FrontCameras {
		if name == camera {
			return true
		}
	}
	return false
}

// IsDepthCamera reports whether the named camera sends a depth plane.
func (c *Config) IsDepthCamera(camera string) bool {
	for _, name := range c.Depth.Cameras {
		if name == camera {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList parses "a,b,c".
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsMap parses "10.0.0.5=front,10.0.0.6=rear".
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
