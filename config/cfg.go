package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// KibelaConfig describes access to the wiki API. Team and token may be
	// left empty in the file and provided with KIBELA_TEAM/KIBELA_TOKEN
	// environment variables instead.
	KibelaConfig struct {
		Team  string       `yaml:"team"`
		Token SecretString `yaml:"token"`
	}

	// ImagesConfig drives the media resolver.
	ImagesConfig struct {
		SizeFloor    int     `yaml:"size_floor" validate:"min=0"`
		JPEGQuality  int     `yaml:"jpeg_quality_level" validate:"min=40,max=100"`
		MaxWidth     int     `yaml:"max_width" validate:"min=100"`
		MaxHeight    int     `yaml:"max_height" validate:"min=100"`
		Workers      int     `yaml:"workers" validate:"min=1,max=32"`
		FetchTimeout int     `yaml:"fetch_timeout" validate:"min=1"`
		ScaleFactor  float64 `yaml:"scale_factor" validate:"gte=0.0"`
	}

	// PageConfig describes fixed output page geometry.
	PageConfig struct {
		Size   PageSize `yaml:"size"`
		Margin float64  `yaml:"margin" validate:"min=18,max=144"`
	}

	DocumentConfig struct {
		OutputNameTemplate    string       `yaml:"output_name_template"`
		FileNameTransliterate bool         `yaml:"file_name_transliterate"`
		TitleFallback         string       `yaml:"title_fallback" validate:"required"`
		Images                ImagesConfig `yaml:"images"`
		Page                  PageConfig   `yaml:"page"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Kibela    KibelaConfig   `yaml:"kibela"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above, alternative is to use struct
	// field name and reflection which I want to avoid for now
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
