package main

import (
	"flag"
	"fmt"
	"github.com/peterbourgon/ff/v3"
	"os"
	"path/filepath"
)

const DefaultDirectoryPermissions = 0700

const EnvironmentPrefix = "HTTPKIT"

type Directories struct {
	Config string
	Data   string
	Log    string
}

type Invocation struct {
	Directories Directories

	// IssueToken, when set, requests a JWT for the named subject be printed instead of starting.
	IssueToken string
}

func parseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("httpkit", flag.ContinueOnError)

	defaultConfigDirectory, err := defaultDirectory("config")
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to construct default configuration directory: %w", err)
	}

	defaultDataDirectory, err := defaultDirectory("data")
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to construct default data directory: %w", err)
	}

	defaultLogDirectory, err := defaultDirectory("log")
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to construct default log directory: %w", err)
	}

	configDirectory := fs.String("config-directory", defaultConfigDirectory, "location of configuration files")
	dataDirectory := fs.String("data-directory", defaultDataDirectory, "location of data files, including HomeKit pairings")
	logDirectory := fs.String("log-directory", defaultLogDirectory, "location of log files")
	issueToken := fs.String("issue-token", "", "print a JWT for the given subject and exit")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvironmentPrefix)); err != nil {
		return Invocation{}, fmt.Errorf("failed to parse environment/command line arguments: %w", err)
	}

	return Invocation{
		Directories: Directories{
			Config: *configDirectory,
			Data:   *dataDirectory,
			Log:    *logDirectory,
		},
		IssueToken: *issueToken,
	}, nil
}

func (d Directories) ensure() error {
	for _, dir := range []string{d.Config, d.Data, d.Log} {
		if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
			return fmt.Errorf("failed to initialise directory '%s': %w", dir, err)
		}
	}

	return nil
}

func defaultDirectory(t string) (string, error) {
	if configDir, err := os.UserConfigDir(); err != nil {
		return "", err
	} else {
		return filepath.Join(configDir, "httpkit", t), nil
	}
}
