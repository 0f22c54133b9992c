// Package config loads and validates the deployment-time
// configuration: where the backend lives, which contract generation
// it speaks, and how values are displayed.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"
)

// Contract generation names. The backend's wire conventions are told
// to the client via configuration, never inferred from payloads.
const (
	ContractLegacy   = "legacy"
	ContractEnvelope = "envelope"
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	API     API     `yaml:"api"`
	Session Session `yaml:"session"`
	Cache   Cache   `yaml:"cache"`
	Display Display `yaml:"display"`

	LogLevel string `yaml:"log_level"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.API, validation.Required),
		validation.Field(&c.Session, validation.Required),
		validation.Field(&c.Cache, validation.Required),
		validation.Field(&c.Display),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error")),
	)
}

type API struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	ContractVersion string `yaml:"contract_version"`
	// DataTypeCodes overrides the contract's default wire-code table,
	// keyed by wire code with canonical type names as values, e.g.
	// "0": VARCHAR.
	DataTypeCodes map[string]string `yaml:"data_type_codes"`
}

func (a API) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, validation.Required, is.URL),
		validation.Field(&a.TimeoutSeconds, validation.Required, validation.Min(1)),
		validation.Field(&a.ContractVersion, validation.Required, validation.In(ContractLegacy, ContractEnvelope)),
		validation.Field(&a.DataTypeCodes, validation.By(validTypeCodes)),
	)
}

func (a API) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// TypeCodes returns the wire-code table for the configured backend:
// the explicit override when one is set, otherwise the contract
// generation's default.
func (a API) TypeCodes() (schema.TypeCodes, error) {
	if len(a.DataTypeCodes) > 0 {
		codes := make(map[int]schema.DataType, len(a.DataTypeCodes))

		for rawCode, name := range a.DataTypeCodes {
			code, err := strconv.Atoi(rawCode)
			if err != nil {
				return schema.TypeCodes{}, fmt.Errorf("data type code %q is not an integer", rawCode)
			}

			t := schema.ParseDataType(name)
			if t == schema.TypeUnknown {
				return schema.TypeCodes{}, fmt.Errorf("unknown data type name %q for code %q", name, rawCode)
			}

			codes[code] = t
		}

		return schema.NewTypeCodes(codes), nil
	}

	if a.ContractVersion == ContractLegacy {
		return schema.ZeroBasedTypeCodes(), nil
	}

	return schema.OneBasedTypeCodes(), nil
}

func validTypeCodes(value interface{}) error {
	codes, ok := value.(map[string]string)
	if !ok || len(codes) == 0 {
		return nil
	}

	for rawCode, name := range codes {
		if _, err := strconv.Atoi(rawCode); err != nil {
			return fmt.Errorf("code %q must be an integer", rawCode)
		}

		if schema.ParseDataType(name) == schema.TypeUnknown {
			return fmt.Errorf("code %q maps to unknown data type %q", rawCode, name)
		}
	}

	return nil
}

type Session struct {
	DBPath string `yaml:"db_path"`
}

func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.DBPath, validation.Required),
	)
}

type Cache struct {
	DBPath               string `yaml:"db_path"`
	CacheDurationSeconds int    `yaml:"cache_duration_seconds"`
}

func (c Cache) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.CacheDurationSeconds, validation.Required, validation.Min(1)),
	)
}

func (c Cache) CacheDuration() time.Duration {
	return time.Duration(c.CacheDurationSeconds) * time.Second
}

type Display struct {
	Locale         string `yaml:"locale"`
	DatetimeLayout string `yaml:"datetime_layout"`
}

func (d Display) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Locale, validation.By(parseableLocale)),
	)
}

// LanguageTag returns the configured locale, falling back to English
// when unset.
func (d Display) LanguageTag() language.Tag {
	if d.Locale == "" {
		return language.English
	}

	tag, err := language.Parse(d.Locale)
	if err != nil {
		return language.English
	}

	return tag
}

func parseableLocale(value interface{}) error {
	locale, ok := value.(string)
	if !ok || locale == "" {
		return nil
	}

	_, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("locale %q: %w", locale, err)
	}

	return nil
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	fileName := filepath.Base(absolutePath)
	path := filepath.Dir(absolutePath)
	extension := filepath.Ext(fileName)

	if strings.ReplaceAll(strings.ToLower(extension), ".", "") != defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: fileName[:len(fileName)-len(extension)],
		Path:     path,
	}, nil
}

func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct{}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // So that env vars are translated properly
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName // We use yaml tags in the config structs so we can marshal to yaml
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"TABELL_API_BASE_URL": "api.base_url",
		"TABELL_API_CONTRACT": "api.contract_version",
		"TABELL_LOG_LEVEL":    "log_level",
	})
}
