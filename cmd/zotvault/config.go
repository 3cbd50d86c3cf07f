package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/je4/zotvault/pkg/convert"
	"github.com/je4/zotvault/pkg/ledger"
	"github.com/je4/zotvault/pkg/note"
	"github.com/je4/zotvault/pkg/zotero"
)

const apiKeyEnv = "ZOTERO_API_KEY"

type ZoteroConfig struct {
	Endpoint        string `toml:"endpoint"`
	ApiKey          string `toml:"apikey"`
	LibraryType     string `toml:"librarytype"`
	LibraryId       string `toml:"libraryid"`
	CacheExpiration string `toml:"cacheexpiration"`
	PageSize        int64  `toml:"pagesize"`
}

func isDuration(value interface{}) error {
	str, _ := value.(string)
	if str == "" {
		return nil
	}
	if _, err := time.ParseDuration(str); err != nil {
		return errors.Errorf("invalid duration %s", str)
	}
	return nil
}

func (c ZoteroConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.ApiKey, validation.Required.Error("missing api key, set it in the config or "+apiKeyEnv)),
		validation.Field(&c.LibraryType, validation.In(string(zotero.LibraryUser), string(zotero.LibraryGroup))),
		validation.Field(&c.LibraryId, validation.When(c.LibraryType == string(zotero.LibraryGroup), validation.Required)),
		validation.Field(&c.CacheExpiration, validation.By(isDuration)),
		validation.Field(&c.PageSize, validation.Min(int64(1)), validation.Max(int64(100))),
	)
}

type GitConfig struct {
	Init        bool   `toml:"init"`
	AuthorName  string `toml:"authorname"`
	AuthorEmail string `toml:"authoremail"`
	Message     string `toml:"message"`
}

type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	AccessKeyId     string `toml:"accessKeyId"`
	SecretAccessKey string `toml:"secretAccessKey"`
	UseSSL          bool   `toml:"useSSL"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
}

const (
	VaultLocal = "local"
	VaultGit   = "git"
	VaultS3    = "s3"
)

type VaultConfig struct {
	Type     string    `toml:"type"`
	Path     string    `toml:"path"`
	Folder   string    `toml:"folder"`
	Filename string    `toml:"filename"`
	NoteType string    `toml:"notetype"`
	Git      GitConfig `toml:"git"`
	S3       S3Config  `toml:"s3"`
}

func (c VaultConfig) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In(VaultLocal, VaultGit, VaultS3)),
		validation.Field(&c.Path, validation.When(c.Type != VaultS3, validation.Required.Error("missing vault path, set it in the config or use --vault"))),
		validation.Field(&c.Filename, validation.In(note.FilenameTitle, note.FilenameSlug, note.FilenameKey)),
	); err != nil {
		return err
	}
	if c.Type == VaultS3 {
		return validation.ValidateStruct(&c.S3,
			validation.Field(&c.S3.Endpoint, validation.Required),
			validation.Field(&c.S3.Bucket, validation.Required),
		)
	}
	return nil
}

type ConverterConfig struct {
	Kind    string   `toml:"kind"`
	Pandoc  string   `toml:"pandoc"`
	Args    []string `toml:"args"`
	Link    bool     `toml:"link"`
	Callout string   `toml:"callout"`
	Colors  bool     `toml:"colors"`
}

func (c ConverterConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.In(convert.KindBuiltin, convert.KindPandoc)),
	)
}

type TemplateConfig struct {
	File string `toml:"file"`
}

type LedgerConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

func (c LedgerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.In(ledger.DriverSQLite, ledger.DriverPostgres, ledger.DriverMySQL)),
		validation.Field(&c.DSN, validation.When(c.Driver != "", validation.Required)),
	)
}

type ServerConfig struct {
	Listen     string `toml:"listen"`
	AccessLog  string `toml:"accesslog"`
	TLS        bool   `toml:"tls"`
	CertChain  string `toml:"certchain"`
	PrivateKey string `toml:"privatekey"`
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.CertChain, validation.When(c.TLS, validation.Required)),
		validation.Field(&c.PrivateKey, validation.When(c.TLS, validation.Required)),
	)
}

type Config struct {
	Logfile   string          `toml:"logfile"`
	Loglevel  string          `toml:"loglevel"`
	Zotero    ZoteroConfig    `toml:"zotero"`
	Vault     VaultConfig     `toml:"vault"`
	Converter ConverterConfig `toml:"converter"`
	Template  TemplateConfig  `toml:"template"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Server    ServerConfig    `toml:"server"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Loglevel, validation.In("CRITICAL", "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG")),
		validation.Field(&c.Zotero),
		validation.Field(&c.Vault),
		validation.Field(&c.Converter),
		validation.Field(&c.Ledger),
		validation.Field(&c.Server),
	)
}

func DefaultConfig() Config {
	return Config{
		Loglevel: "WARNING",
		Zotero: ZoteroConfig{
			Endpoint:        zotero.DefaultEndpoint,
			LibraryType:     string(zotero.LibraryUser),
			CacheExpiration: "10m",
			PageSize:        100,
		},
		Vault: VaultConfig{
			Type:     VaultLocal,
			Filename: note.FilenameTitle,
			NoteType: "article",
			Git: GitConfig{
				AuthorName:  "zotvault",
				AuthorEmail: "zotvault@localhost",
				Message:     "zotvault: %s",
			},
			S3: S3Config{UseSSL: true},
		},
		Converter: ConverterConfig{
			Kind:   convert.KindBuiltin,
			Pandoc: "pandoc",
			Link:   true,
		},
		Server: ServerConfig{
			Listen: "localhost:8083",
		},
	}
}

func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "zotvault.toml"
	}
	return filepath.Join(dir, "zotvault", "zotvault.toml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// LoadConfig reads the config file over the defaults. A missing file is
// only accepted if it is the default location.
func LoadConfig(path string, required bool) (*Config, error) {
	conf := DefaultConfig()
	if _, err := os.Stat(path); err == nil || required {
		if _, err := toml.DecodeFile(path, &conf); err != nil {
			return nil, errors.Wrapf(err, "cannot load config %s", path)
		}
	}
	if key := os.Getenv(apiKeyEnv); key != "" {
		conf.Zotero.ApiKey = key
	}
	conf.Loglevel = strings.ToUpper(conf.Loglevel)
	conf.Vault.Path = expandHome(conf.Vault.Path)
	conf.Template.File = expandHome(conf.Template.File)
	if conf.Ledger.Driver == ledger.DriverSQLite {
		conf.Ledger.DSN = expandHome(conf.Ledger.DSN)
	}
	return &conf, nil
}

func (c *Config) CacheExpiration() time.Duration {
	d, err := time.ParseDuration(c.Zotero.CacheExpiration)
	if err != nil {
		return 0
	}
	return d
}
