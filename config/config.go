package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Secret        string `yaml:"secret"`
	SessionName   string `yaml:"session_name"`
	SessionMaxAge int    `yaml:"session_max_age"`
	JwtExpireHour int    `yaml:"jwt_expire_hour"`
	UploadDir     string `yaml:"upload_dir"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
}

type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

type GatewayConfig struct {
	CardURL   string `yaml:"card_url"`
	CryptoURL string `yaml:"crypto_url"`
	ApiKey    string `yaml:"api_key"`
	ReturnURL string `yaml:"return_url"`
}

type SmtpConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system"`
	Web      WebConfig     `yaml:"web"`
	Database DBConfig      `yaml:"database"`
	Logger   LogConfig     `yaml:"logger"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Smtp     SmtpConfig    `yaml:"smtp"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "accstore",
		Location: "America/New_York",
		Workdir:  "/var/accstore",
		Debug:    true,
	},
	Web: WebConfig{
		Host:          "0.0.0.0",
		Port:          1880,
		Secret:        "9b6de5cc-0731-1203-xxtt-0f568ac9da37",
		SessionName:   "accstore_session",
		SessionMaxAge: 86400,
		JwtExpireHour: 24,
		UploadDir:     "uploads",
		MaxUploadMB:   16,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "accstore",
		User:     "postgres",
		Passwd:   "myroot",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/accstore/accstore.log",
	},
	Gateway: GatewayConfig{
		CardURL:   "https://pay.example.com/card",
		CryptoURL: "https://pay.example.com/crypto",
		ReturnURL: "http://127.0.0.1:1880/payment-success",
	},
}

func setEnvValue(name string, f func(v string)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(evalue)
	}
}

func setEnvInt64Value(name string, f func(v int64)) {
	var evalue = os.Getenv(name)
	if evalue == "" {
		return
	}
	p, err := cast.ToInt64E(evalue)
	if err == nil {
		f(p)
	}
}

// LoadConfig reads the YAML config file and applies environment overrides.
// A missing file yields the default configuration.
func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("ACCSTORE_SYSTEM_WORKDIR", func(v string) { cfg.System.Workdir = v })
	setEnvValue("ACCSTORE_SYSTEM_DEBUG", func(v string) { cfg.System.Debug = v == "true" })
	setEnvValue("ACCSTORE_WEB_HOST", func(v string) { cfg.Web.Host = v })
	setEnvInt64Value("ACCSTORE_WEB_PORT", func(v int64) { cfg.Web.Port = int(v) })
	setEnvValue("ACCSTORE_WEB_SECRET", func(v string) { cfg.Web.Secret = v })
	setEnvValue("ACCSTORE_DB_TYPE", func(v string) { cfg.Database.Type = v })
	setEnvValue("ACCSTORE_DB_HOST", func(v string) { cfg.Database.Host = v })
	setEnvInt64Value("ACCSTORE_DB_PORT", func(v int64) { cfg.Database.Port = int(v) })
	setEnvValue("ACCSTORE_DB_NAME", func(v string) { cfg.Database.Name = v })
	setEnvValue("ACCSTORE_DB_USER", func(v string) { cfg.Database.User = v })
	setEnvValue("ACCSTORE_DB_PWD", func(v string) { cfg.Database.Passwd = v })
	setEnvValue("ACCSTORE_GATEWAY_CARD_URL", func(v string) { cfg.Gateway.CardURL = v })
	setEnvValue("ACCSTORE_GATEWAY_CRYPTO_URL", func(v string) { cfg.Gateway.CryptoURL = v })
	setEnvValue("ACCSTORE_GATEWAY_API_KEY", func(v string) { cfg.Gateway.ApiKey = v })
	setEnvValue("ACCSTORE_SMTP_HOST", func(v string) { cfg.Smtp.Host = v })
	setEnvInt64Value("ACCSTORE_SMTP_PORT", func(v int64) { cfg.Smtp.Port = int(v) })
	setEnvValue("ACCSTORE_SMTP_USERNAME", func(v string) { cfg.Smtp.Username = v })
	setEnvValue("ACCSTORE_SMTP_PASSWORD", func(v string) { cfg.Smtp.Password = v })

	return cfg
}

// InitDirs creates the runtime directory layout under workdir.
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "logs"), 0o755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "metrics"), 0o755)
	_ = os.MkdirAll(c.AbsUploadDir(), 0o755)
}

// AbsUploadDir resolves the upload directory against workdir.
func (c *AppConfig) AbsUploadDir() string {
	if filepath.IsAbs(c.Web.UploadDir) {
		return c.Web.UploadDir
	}
	return filepath.Join(c.System.Workdir, c.Web.UploadDir)
}
