package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatLines Format = "lines"
)

const (
	DefaultPoolSize    = 4
	DefaultPollTimeout = time.Second
	DefaultBackend     = "inotify"
)

type FileConfig struct {
	Path   string `yaml:"path"`
	Format Format `yaml:"format"`
	// SkipUnchanged keeps the current value when the content digest did not change.
	SkipUnchanged bool `yaml:"skip_unchanged"`
}

type Config struct {
	PoolSize       int           `yaml:"pool_size"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	Backend        string        `yaml:"backend"`
	Resync         string        `yaml:"resync"`
	MetricsAddress string        `yaml:"metrics_address"`
	Files          []FileConfig  `yaml:"files"`
}

func ReadConfig(file string) (*Config, error) {
	yfile, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	c := Config{}
	err = yaml.Unmarshal(yfile, &c)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}

	var errs []error
	switch c.Backend {
	case "inotify", "fsnotify":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if len(c.Files) == 0 {
		errs = append(errs, errors.New("no files configured"))
	}
	seen := make(map[string]bool)
	for i := range c.Files {
		f := &c.Files[i]
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("files[%d]: empty path", i))
			continue
		}
		if seen[f.Path] {
			errs = append(errs, fmt.Errorf("files[%d]: duplicate path %s", i, f.Path))
		}
		seen[f.Path] = true

		switch f.Format {
		case FormatJSON, FormatYAML, FormatLines:
		case "":
			errs = append(errs, fmt.Errorf("files[%d]: missing format", i))
		default:
			errs = append(errs, fmt.Errorf("files[%d]: unknown format %q", i, f.Format))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalid}, errs...)...)
	}
	return nil
}
