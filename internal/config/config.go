package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

type SourceType string

const (
	SourceDirectory SourceType = "Directory"
	SourceWatch     SourceType = "Watch"
	SourceVideo     SourceType = "Video"
	SourceWebcam    SourceType = "Web-Camera"
	SourceRemote    SourceType = "Remote"

	DefaultConfigPath string = "config.json"
	DefaultRemoteHost string = "localhost:8080"
)

var SourcesList = [...]string{
	string(SourceDirectory),
	string(SourceWatch),
	string(SourceVideo),
	string(SourceWebcam),
	string(SourceRemote),
}

type ProjectorConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type CameraConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type DecoderConfig struct {
	Threshold uint8 `json:"threshold"`
}

type TriangulateConfig struct {
	DistanceThreshold float64 `json:"distance_threshold"`
	PointSize         float64 `json:"point_size"`
}

type DirectoryConfig struct {
	Path string `json:"path"`
}

type VideoConfig struct {
	Path string `json:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id"`
}

type RemoteConfig struct {
	Host string `json:"host"`
}

type CaptureConfig struct {
	ActiveSource SourceType `json:"active_source"`
	TargetFPS    uint       `json:"target_fps"`
	SettleMillis int        `json:"settle_ms"`

	Directory DirectoryConfig `json:"directory"`
	Video     VideoConfig     `json:"video"`
	Webcam    WebcamConfig    `json:"webcam"`
	Remote    RemoteConfig    `json:"remote"`
}

type LogConfig struct {
	Debug bool `json:"debug"`
}

type Config struct {
	mu sync.RWMutex

	Projector   ProjectorConfig   `json:"projector"`
	Camera      CameraConfig      `json:"camera"`
	Decoder     DecoderConfig     `json:"decoder"`
	Triangulate TriangulateConfig `json:"triangulate"`
	Capture     CaptureConfig     `json:"capture"`
	Log         LogConfig         `json:"log"`
}

func (c *Config) GetThreshold() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Decoder.Threshold
}

func (c *Config) SetThreshold(t uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Decoder.Threshold = t
}

func (c *Config) GetDistanceThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Triangulate.DistanceThreshold
}

func (c *Config) SetDistanceThreshold(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Triangulate.DistanceThreshold = v
}

func (c *Config) GetPointSize() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Triangulate.PointSize
}

func (c *Config) SetPointSize(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Triangulate.PointSize = v
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.ActiveSource
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.ActiveSource = s
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.TargetFPS = fps
}

func (c *Config) GetSettle() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Capture.SettleMillis) * time.Millisecond
}

// Validate reports the first setting that the tools cannot work with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Projector.Width <= 0 || c.Projector.Height <= 0 {
		return fmt.Errorf("invalid projector resolution %dx%d", c.Projector.Width, c.Projector.Height)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Triangulate.DistanceThreshold < 0 {
		return fmt.Errorf("distance threshold must not be negative, got %v", c.Triangulate.DistanceThreshold)
	}
	for _, s := range SourcesList {
		if string(c.Capture.ActiveSource) == s {
			return nil
		}
	}
	return fmt.Errorf("unknown capture source %q", c.Capture.ActiveSource)
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

// LoadConfigFile reads path over the defaults. A missing or unparsable file
// leaves the defaults in place.
func LoadConfigFile(path string) *Config {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg
	}
	defer f.Close()

	loaded := NewDefaultConfig()
	if err := json.NewDecoder(f).Decode(loaded); err != nil {
		return cfg
	}
	return loaded
}

func NewDefaultConfig() *Config {
	return &Config{
		Projector: ProjectorConfig{Width: 1024, Height: 768},
		Camera:    CameraConfig{Width: 1920, Height: 1080},
		Decoder:   DecoderConfig{Threshold: 128},
		Triangulate: TriangulateConfig{
			DistanceThreshold: 0.05,
			PointSize:         1,
		},
		Capture: CaptureConfig{
			ActiveSource: SourceDirectory,
			TargetFPS:    2,
			SettleMillis: 300,
			Directory:    DirectoryConfig{Path: "."},
			Webcam:       WebcamConfig{DeviceID: "0"},
			Remote:       RemoteConfig{Host: DefaultRemoteHost},
		},
	}
}
