package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// 环境变量
const (
	EnvDBDriver     = "PENSIONHUB_DB_DRIVER"
	EnvDBDSN        = "PENSIONHUB_DB_DSN"
	EnvPort         = "PENSIONHUB_PORT"
	EnvLogLevel     = "PENSIONHUB_LOG_LEVEL"
	EnvProfilesFile = "PENSIONHUB_PROFILES_FILE"
	EnvDataDir      = "PENSIONHUB_DATA_DIR"
)

// AppConfig 应用配置
type AppConfig struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Data       DataConfig       `toml:"data"`
	Ingest     IngestConfig     `toml:"ingest"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `toml:"driver"` // sqlite3 | pgx
	DSN          string `toml:"dsn"`    // sqlite3 为空时使用 data_dir/pensionhub.db
	MaxOpenConns int    `toml:"max_open_conns"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// IngestConfig 导入配置
type IngestConfig struct {
	ProbeRows            int     `toml:"probe_rows"`
	MinMappingScore      float64 `toml:"min_mapping_score"`
	MaxConsecutiveErrors int     `toml:"max_consecutive_errors"`
	ProfilesFile         string  `toml:"profiles_file"`      // 附加格式定义（YAML）
	GeoReferenceFile     string  `toml:"geo_reference_file"` // 邮编对照表（CSV）
	MaxUploadMB          int     `toml:"max_upload_mb"`
}

// AggregatorConfig 汇总配置
type AggregatorConfig struct {
	RecomputeSchedule string `toml:"recompute_schedule"` // cron 表达式，空表示不启用
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
	File   string `toml:"file"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	FileFound     bool
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20261,
			DevMode: false,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Ingest: IngestConfig{
			ProbeRows:            10,
			MinMappingScore:      60,
			MaxConsecutiveErrors: 25,
			MaxUploadMB:          64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

func exeDirOrDot() string {
	dir, err := GetExeDir()
	if err != nil || dir == "" {
		return "."
	}
	return dir
}

// LoadConfigWithInfo 加载配置：默认值 <- config.toml <- .env / 环境变量。
// path 为空时读取可执行文件同目录下的 config.toml，文件不存在不是错误
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	config := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(exeDirOrDot(), "config.toml")
	}
	info := LoadConfigInfo{Path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.FileFound = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	// .env 只补充未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, info, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(config, &info); err != nil {
		return nil, info, err
	}
	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// LoadConfig 加载配置
func LoadConfig(path string) (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo(path)
	return config, err
}

// applyEnv 环境变量覆盖
func applyEnv(config *AppConfig, info *LoadConfigInfo) error {
	if v := os.Getenv(EnvDBDriver); v != "" {
		config.Database.Driver = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		config.Server.Port = port
		info.PortSpecified = true
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv(EnvProfilesFile); v != "" {
		config.Ingest.ProfilesFile = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		config.Data.DataDir = v
	}
	return nil
}

// Validate 检查配置取值
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "pgx" && c.Database.DSN == "" {
		return errors.New("database dsn is required for pgx")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	if c.Ingest.MinMappingScore < 0 || c.Ingest.MinMappingScore > 100 {
		return fmt.Errorf("min_mapping_score must be within [0,100], got %v", c.Ingest.MinMappingScore)
	}
	return nil
}

// SaveConfig 保存配置
func SaveConfig(config *AppConfig, path string) error {
	if path == "" {
		path = filepath.Join(exeDirOrDot(), "config.toml")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ResolveDataDir 数据目录；相对路径以可执行文件所在目录为基准
func ResolveDataDir(config *AppConfig) string {
	if filepath.IsAbs(config.Data.DataDir) {
		return config.Data.DataDir
	}
	return filepath.Join(exeDirOrDot(), config.Data.DataDir)
}

// EnsureDataDir 确保数据目录存在
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := ResolveDataDir(config)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	// 创建子目录
	subdirs := []string{"uploads", "exports"}
	for _, subdir := range subdirs {
		path := filepath.Join(dataDir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}

// GetDataPath 获取数据文件路径
func GetDataPath(config *AppConfig, subdir, filename string) string {
	return filepath.Join(ResolveDataDir(config), subdir, filename)
}

// DatabaseDSN 实际使用的连接串
func DatabaseDSN(config *AppConfig) string {
	if config.Database.DSN != "" || config.Database.Driver != "sqlite3" {
		return config.Database.DSN
	}
	return filepath.Join(ResolveDataDir(config), "pensionhub.db")
}
