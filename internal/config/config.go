package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "settings.yaml"

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const (
	DefaultListPageURL        = "https://api.placetel.de/v2/recordings?order=asc&page={page}"
	DefaultGetRecordingURL    = "https://api.placetel.de/v2/recordings/{id}"
	DefaultDeleteRecordingURL = "https://api.placetel.de/v2/recordings/{id}"
)

type Config struct {
	AuthToken      string
	DownloadFolder string

	DoDownload            bool
	DoDelete              bool
	DoWriteDownloadedList bool
	DoWriteDeletedList    bool

	ExcludeRecordingIDs map[int64]struct{}

	ListPageURL        string
	GetRecordingURL    string
	DeleteRecordingURL string

	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration
	RateLimit   float64

	StorageBackend string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string

	ListFolder       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string
}

// Load reads the settings file at path and applies environment overrides.
// A missing file is not an error; unknown keys and malformed values fall
// back to their defaults.
func Load(path string) (*Config, error) {
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return FromSource(Source{file: values, env: os.LookupEnv}), nil
}

func FromSource(src Source) *Config {
	return &Config{
		AuthToken:      src.get("AUTH_TOKEN", ""),
		DownloadFolder: src.get("DOWNLOAD_FOLDER", ""),

		DoDownload:            src.getBool("DO_DOWNLOAD"),
		DoDelete:              src.getBool("DO_DELETE"),
		DoWriteDownloadedList: src.getBool("DO_WRITE_DOWNLOADED_LIST"),
		DoWriteDeletedList:    src.getBool("DO_WRITE_DELETED_LIST"),

		ExcludeRecordingIDs: ParseIDSet(src.get("EXCLUDE_RECORDING_IDS", "")),

		ListPageURL:        src.get("URL_LIST_PAGE", DefaultListPageURL),
		GetRecordingURL:    src.get("URL_GET_RECORDING", DefaultGetRecordingURL),
		DeleteRecordingURL: src.get("URL_DELETE_RECORDING", DefaultDeleteRecordingURL),

		LogLevel:    src.get("LOG_LEVEL", "info"),
		LogFormat:   src.get("LOG_FORMAT", "text"),
		HTTPTimeout: src.getDuration("HTTP_TIMEOUT", 0),
		RateLimit:   src.getFloat("RATE_LIMIT", 0),

		StorageBackend: strings.ToLower(src.get("STORAGE_BACKEND", StorageLocal)),
		S3Bucket:       src.get("S3_BUCKET", ""),
		S3Region:       src.get("AWS_REGION", "us-east-1"),
		S3Endpoint:     src.get("S3_ENDPOINT", ""),
		S3AccessKey:    src.get("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:    src.get("AWS_SECRET_ACCESS_KEY", ""),

		ListFolder:       src.get("LIST_FOLDER", "."),
		PostgresHost:     src.get("POSTGRES_HOST", ""),
		PostgresPort:     src.get("POSTGRES_PORT", "5432"),
		PostgresUser:     src.get("POSTGRES_USER", "recordings"),
		PostgresPassword: src.get("POSTGRES_PASSWORD", ""),
		PostgresDatabase: src.get("POSTGRES_DATABASE", "recordings"),
		PostgresSSLMode:  src.get("POSTGRES_SSL_MODE", "disable"),
	}
}

// Validate reports settings that make a run impossible. It never rejects
// the malformed values Load already replaced with defaults.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if !strings.Contains(c.ListPageURL, "{page}") {
		return errors.New("URL_LIST_PAGE must contain {page}")
	}
	if !strings.Contains(c.GetRecordingURL, "{id}") {
		return errors.New("URL_GET_RECORDING must contain {id}")
	}
	if !strings.Contains(c.DeleteRecordingURL, "{id}") {
		return errors.New("URL_DELETE_RECORDING must contain {id}")
	}
	return nil
}

func (c *Config) IsExcluded(id int64) bool {
	_, ok := c.ExcludeRecordingIDs[id]
	return ok
}

func (c *Config) UsePostgres() bool {
	return c.PostgresHost != ""
}

// ParseBool accepts true, t, yes and y in any case. Everything else is false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "t", "yes", "y":
		return true
	}
	return false
}

// ParseIDSet parses a comma separated list of recording ids, dropping any
// token that is not an integer.
func ParseIDSet(value string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, tok := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

type Source struct {
	file map[string]string
	env  func(string) (string, bool)
}

func NewSource(file map[string]string, env func(string) (string, bool)) Source {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	return Source{file: file, env: env}
}

func (s Source) lookup(key string) (string, bool) {
	if s.env != nil {
		if value, ok := s.env(key); ok && value != "" {
			return value, true
		}
	}
	value, ok := s.file[key]
	return value, ok && value != ""
}

func (s Source) get(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s Source) getBool(key string) bool {
	value, _ := s.lookup(key)
	return ParseBool(value)
}

func (s Source) getFloat(key string, defaultValue float64) float64 {
	if value, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultValue
}

func (s Source) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		if s, ok := scalarString(v); ok {
			values[strings.ToUpper(key)] = s
		}
	}
	return values, nil
}

// scalarString flattens YAML scalars and lists of scalars. Lists become
// comma separated so EXCLUDE_RECORDING_IDS may be written either way.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalarString(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), true
	case map[string]interface{}:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}
