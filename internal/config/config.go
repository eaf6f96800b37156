package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvLLMAPIKey overrides [llm].api_key when set.
const EnvLLMAPIKey = "PAPERBOY_LLM_API_KEY"

// EnvSMTPPassword overrides [email].smtp_password when set.
const EnvSMTPPassword = "PAPERBOY_SMTP_PASSWORD"

// Storage contains database and artifact directory configuration.
type Storage struct {
	DBPath     string `toml:"db_path"`
	PDFDir     string `toml:"pdf_dir"`
	TextDir    string `toml:"text_dir"`
	LogDir     string `toml:"log_dir"`
	TopicsPath string `toml:"topics_path"`
	SaveText   bool   `toml:"save_text"`
}

// Arxiv contains configuration for the arXiv fetch source.
type Arxiv struct {
	Categories            []string `toml:"categories"`
	MaxResultsPerCategory int      `toml:"max_results_per_category"`
	DaysBack              int      `toml:"days_back"`
	RequestTimeout        int      `toml:"request_timeout"`
}

// SemanticScholar contains configuration for the optional secondary source.
type SemanticScholar struct {
	Enabled        bool     `toml:"enabled"`
	Queries        []string `toml:"queries"`
	Limit          int      `toml:"limit"`
	RequestTimeout int      `toml:"request_timeout"`
}

// LLM contains connection settings for the OpenAI-compatible model endpoint.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTokens      int    `toml:"max_tokens"`
}

// Thresholds contains the relevance gate and text quality floors.
type Thresholds struct {
	Relevance        float64 `toml:"relevance"`
	MinTextChars     int     `toml:"min_text_chars"`
	MinAbstractChars int     `toml:"min_abstract_chars"`
}

// Email contains SMTP delivery settings.
type Email struct {
	SMTPHost     string `toml:"smtp_host"`
	SMTPPort     int    `toml:"smtp_port"`
	SMTPUser     string `toml:"smtp_user"`
	SMTPPassword string `toml:"smtp_password"`
	FromAddr     string `toml:"from_addr"`
	ToAddr       string `toml:"to_addr"`
	UseTLS       bool   `toml:"use_tls"`
	IncludeJSON  bool   `toml:"include_json"`
}

// Workflow contains batch scheduling and retry policy.
type Workflow struct {
	Schedule        string `toml:"schedule"`
	RetryFailed     bool   `toml:"retry_failed"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for paperboy.
//
// Configuration sections by subsystem:
//   - Storage: SQLite database path and PDF/text artifact directories
//   - Arxiv: primary fetch source (categories, window, result caps)
//   - SemanticScholar: optional keyword-search secondary source
//   - LLM: OpenAI-compatible chat completion endpoint
//   - Thresholds: relevance gate and minimum text floors
//   - Email: SMTP digest delivery
//   - Workflow: daemon schedule and failed-paper retry policy
//   - Logging: log format and level
type Config struct {
	Storage         Storage         `toml:"storage"`
	Arxiv           Arxiv           `toml:"arxiv"`
	SemanticScholar SemanticScholar `toml:"semantic_scholar"`
	LLM             LLM             `toml:"llm"`
	Thresholds      Thresholds      `toml:"thresholds"`
	Email           Email           `toml:"email"`
	Workflow        Workflow        `toml:"workflow"`
	Logging         Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/paperboy/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and secret env overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("paperboy.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories batch runs require.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.DBPath), c.Storage.PDFDir, c.Storage.LogDir}
	if c.Storage.SaveText {
		dirs = append(dirs, c.Storage.TextDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the path of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(c.Storage.DBPath), "paperboy.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
