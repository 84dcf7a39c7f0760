// Package config reads the optional YAML suite file. Command-line flags override anything set
// here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout = time.Second * 60
	DefaultHost    = "localhost"
)

// Suite is the content of a suite file:
//
//	packageManager:
//	  path: /usr/local/bin/bun
//	  extraEnv:
//	    BUN_CONFIG_VERBOSE_FETCH: "1"
//	testService:
//	  url: http://localhost:8000
//	timeout: 90s
//	skip:
//	  - "lifecycle/concurrent"
type Suite struct {
	PackageManager   PackageManager `yaml:"packageManager"`
	TestService      TestService    `yaml:"testService"`
	Timeout          time.Duration  `yaml:"timeout"`
	Host             string         `yaml:"host"`
	Port             int            `yaml:"port"`
	Run              []string       `yaml:"run"`
	Skip             []string       `yaml:"skip"`
	Debug            bool           `yaml:"debug"`
	DebugAll         bool           `yaml:"debugAll"`
	StopServiceAtEnd bool           `yaml:"stopServiceAtEnd"`
}

type PackageManager struct {
	Path string `yaml:"path"`
	// ExtraEnv is added to the environment of every package manager invocation.
	ExtraEnv map[string]string `yaml:"extraEnv"`
}

type TestService struct {
	URL string `yaml:"url"`
}

// Defaults returns the settings used when there is no suite file.
func Defaults() Suite {
	return Suite{Timeout: DefaultTimeout, Host: DefaultHost}
}

// Load reads a suite file. Fields missing from the file keep their default values; unknown
// fields are an error.
func Load(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("could not read suite file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Suite, error) {
	s := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Suite{}, fmt.Errorf("invalid suite file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Suite{}, err
	}
	return s, nil
}

func (s Suite) Validate() error {
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d is out of range", s.Port)
	}
	return nil
}

// Env returns ExtraEnv as KEY=value strings.
func (p PackageManager) Env() []string {
	ret := make([]string, 0, len(p.ExtraEnv))
	for k, v := range p.ExtraEnv {
		ret = append(ret, k+"="+v)
	}
	return ret
}
