package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Settings is the runtime configuration handed to the server and the UI.
// It is built once at startup and passed explicitly; nothing reads it from
// package-level state.
type Settings struct {
	PhotoDir      string `toml:"photo_directory"`
	BdayFile      string `toml:"bday_file"`
	BindAddr      string `toml:"bind_address"`
	Port          int    `toml:"port"`
	Language      string `toml:"language"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OpenAIModel   string `toml:"openai_model"`
	KeyBackend    string `toml:"key_backend"` // KeyBackendKeyring or KeyBackendFile
}

// DefaultSettings returns the settings used when no file and no flag say otherwise.
func DefaultSettings() Settings {
	return Settings{
		BindAddr:      DefaultBindAddr,
		Port:          DefaultPort,
		Language:      DefaultLanguage,
		OpenAIBaseURL: DefaultOpenAIBaseURL,
		OpenAIModel:   DefaultOpenAIModel,
		KeyBackend:    DefaultKeyBackend,
	}
}

// LoadSettings parses the TOML settings file, falling back to defaults when it is missing.
// An empty path means DefaultConfigPath.
func LoadSettings(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return Settings{}, err
	}

	cfg := DefaultSettings()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("%s: %w", ErrConfigOpen, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", ErrConfigRead, err)
	}

	var raw Settings
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", ErrConfigParse, err)
	}

	cfg.merge(raw)
	return cfg, nil
}

// merge copies every non-zero field of other into s.
func (s *Settings) merge(other Settings) {
	if v := strings.TrimSpace(other.PhotoDir); v != "" {
		s.PhotoDir = v
	}
	if v := strings.TrimSpace(other.BdayFile); v != "" {
		s.BdayFile = v
	}
	if v := strings.TrimSpace(other.BindAddr); v != "" {
		s.BindAddr = v
	}
	if other.Port != 0 {
		s.Port = other.Port
	}
	if v := strings.TrimSpace(other.Language); v != "" {
		s.Language = v
	}
	if v := strings.TrimSpace(other.OpenAIBaseURL); v != "" {
		s.OpenAIBaseURL = v
	}
	if v := strings.TrimSpace(other.OpenAIModel); v != "" {
		s.OpenAIModel = v
	}
	if v := strings.TrimSpace(other.KeyBackend); v != "" {
		s.KeyBackend = v
	}
}

// Resolve fills the photo directory (working directory) and registry path
// (bdays.txt inside the photo directory) when they are unset, and makes both absolute.
func (s *Settings) Resolve(workDir string) error {
	if s.PhotoDir == "" {
		s.PhotoDir = workDir
	}
	dir, err := ExpandPath(s.PhotoDir)
	if err != nil {
		return err
	}
	s.PhotoDir = dir

	if s.BdayFile == "" {
		s.BdayFile = filepath.Join(s.PhotoDir, DefaultBdayFileName)
	}
	bday, err := ExpandPath(s.BdayFile)
	if err != nil {
		return err
	}
	s.BdayFile = bday
	return nil
}

// Validate checks the port range and that the photo directory exists.
func (s Settings) Validate() error {
	if s.Port < MinPort || s.Port > MaxPort {
		return errors.New(ErrPortRange)
	}
	info, err := os.Stat(s.PhotoDir)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrDirMissing, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %s", ErrDirMissing, s.PhotoDir)
	}
	return nil
}

// Addr returns the listen address.
func (s Settings) Addr() string {
	return s.BindAddr + AddrSeparator + strconv.Itoa(s.Port)
}

// APIKeyPath is where the file key backend stores the key: next to the registry.
func (s Settings) APIKeyPath() string {
	return filepath.Join(filepath.Dir(s.BdayFile), APIKeyFileName)
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New(ErrPathEmpty)
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%s: %w", ErrHomeDir, err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
