package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources   Sources   `yaml:"sources"`
	Selection Selection `yaml:"selection"`
	Breaking  Breaking  `yaml:"breaking"`
	Models    Models    `yaml:"models"`
	Speech    Speech    `yaml:"speech"`
	Subtitles Subtitles `yaml:"subtitles"`
	Output    Output    `yaml:"output"`
	Assets    Assets    `yaml:"assets"`
	Server    Server    `yaml:"server"`
}

type Sources struct {
	Mode        string     `yaml:"mode"` // "rss" or "api"
	Concurrency int        `yaml:"concurrency"`
	Categories  []Category `yaml:"categories"`
	NewsData    NewsData   `yaml:"newsdata"`
}

type Category struct {
	Name  string `yaml:"name"`
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type NewsData struct {
	APIKeyEnv  string   `yaml:"api_key_env"`
	Categories []string `yaml:"categories"`
}

type Selection struct {
	DailyCount      int     `yaml:"daily_count"`
	WeeklyCount     int     `yaml:"weekly_count"`
	BackupCount     int     `yaml:"backup_count"`
	SimilarityLimit float64 `yaml:"similarity_limit"`
}

type Breaking struct {
	MinSources int `yaml:"min_sources"`
	MaxPerDay  int `yaml:"max_per_day"`
}

type Models struct {
	Chat      string `yaml:"chat"`
	TTS       string `yaml:"tts"`
	Image     string `yaml:"image"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Speech struct {
	Voices []string `yaml:"voices"`
}

type Subtitles struct {
	Languages []string `yaml:"languages"`
}

type Output struct {
	OutputDir string `yaml:"output_dir"`
	DataDir   string `yaml:"data_dir"`
}

type Assets struct {
	EndingVertical   string `yaml:"ending_vertical"`
	EndingHorizontal string `yaml:"ending_horizontal"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for newsreel.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsreel")
}

// DataDir returns the XDG data directory for newsreel.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsreel")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsreel/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsreel init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Mode:        "rss",
			Concurrency: 4,
			NewsData: NewsData{
				APIKeyEnv:  "NEWSDATA_API_KEY",
				Categories: []string{"world", "business", "technology", "science", "health", "sports"},
			},
		},
		Selection: Selection{
			DailyCount:      6,
			WeeklyCount:     16,
			BackupCount:     5,
			SimilarityLimit: 0.5,
		},
		Breaking: Breaking{
			MinSources: 5,
			MaxPerDay:  2,
		},
		Models: Models{
			Chat:      "gpt-4o-mini",
			TTS:       "gpt-4o-mini-tts",
			Image:     "dall-e-3",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Speech: Speech{
			Voices: []string{"marin", "cedar"},
		},
		Subtitles: Subtitles{
			Languages: []string{"ko", "ja", "es"},
		},
		Output: Output{
			OutputDir: "./output",
		},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetOutputDir returns the directory rendered videos and audio land in.
func (c *Config) GetOutputDir() string {
	if c.Output.OutputDir != "" {
		return c.Output.OutputDir
	}
	return "./output"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
