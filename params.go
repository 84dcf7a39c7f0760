package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jsconformance/contract-tests/config"
	"github.com/jsconformance/contract-tests/framework"
)

type commandParams struct {
	packageManager   string
	pmEnv            []string
	serviceURL       string
	port             int
	host             string
	timeout          time.Duration
	filters          framework.RegexFilters
	stopServiceAtEnd bool
	debug            bool
	debugAll         bool
}

// Read parses the command line. If -config names a suite file, its settings are used for
// anything not given explicitly on the command line.
func (c *commandParams) Read(args []string) bool {
	var configPath string
	defaults := config.Defaults()

	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "YAML suite file")
	fs.StringVar(&c.packageManager, "pm", "", "package manager executable to test")
	fs.StringVar(&c.serviceURL, "url", "", "Express test service URL")
	fs.StringVar(&c.host, "host", defaults.Host, "external hostname of the test harness")
	fs.IntVar(&c.port, "port", 0, "port that the test harness will listen on (0 for any)")
	fs.DurationVar(&c.timeout, "timeout", defaults.Timeout, "time limit for each package manager command")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.stopServiceAtEnd, "stop-service-at-end", false, "tell test service to exit after the test run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}

	if configPath != "" {
		suite, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := c.applySuite(suite, explicit); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
	}

	if c.packageManager == "" && c.serviceURL == "" {
		fmt.Fprintln(os.Stderr, "at least one of -pm or -url is required")
		fs.Usage()
		return false
	}
	if c.timeout <= 0 {
		fmt.Fprintln(os.Stderr, "-timeout must be positive")
		return false
	}
	return true
}

func (c *commandParams) applySuite(suite config.Suite, explicit map[string]bool) error {
	if !explicit["pm"] {
		c.packageManager = suite.PackageManager.Path
	}
	c.pmEnv = suite.PackageManager.Env()
	if !explicit["url"] {
		c.serviceURL = suite.TestService.URL
	}
	if !explicit["host"] {
		c.host = suite.Host
	}
	if !explicit["port"] {
		c.port = suite.Port
	}
	if !explicit["timeout"] {
		c.timeout = suite.Timeout
	}
	if !explicit["run"] {
		for _, p := range suite.Run {
			if err := c.filters.MustMatch.Set(p); err != nil {
				return err
			}
		}
	}
	if !explicit["skip"] {
		for _, p := range suite.Skip {
			if err := c.filters.MustNotMatch.Set(p); err != nil {
				return err
			}
		}
	}
	c.stopServiceAtEnd = c.stopServiceAtEnd || suite.StopServiceAtEnd
	c.debug = c.debug || suite.Debug
	c.debugAll = c.debugAll || suite.DebugAll
	return nil
}
