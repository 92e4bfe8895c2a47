package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	defaultScriptsRefspec = "main"
	detectProjects        = "detect"
)

var stepsGenerators = []string{
	"${BUILDKITE_BUILD_CHECKOUT_PATH}/libcxx/utils/ci/buildkite-pipeline-premerge.sh",
}

// Config holds the ph_* variables that Harbormaster passes to the build.
type Config struct {
	ScriptsRefspec    string
	BuildableDiff     string
	BuildableRevision string
	BuildID           string
	NoCache           bool
	Projects          string
	LogLevel          string
	// TargetPHID is only meaningful when HasTargetPHID is set.
	TargetPHID       string
	HasTargetPHID    bool
	SkipGenerated    bool
	SkipLinux        bool
	SkipWindows      bool
	LinuxAgents      map[string]string
	WindowsAgents    map[string]string
	DependenciesFile string
	StepsGenerators  []string
}

func parseAgents(key string, fallback map[string]string) (map[string]string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	agents := make(map[string]string)
	// JSON objects are valid YAML
	if err := yaml.Unmarshal([]byte(value), &agents); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return agents, nil
}

func NewConfig() (*Config, error) {
	phid, hasPHID := os.LookupEnv("ph_target_phid")
	config := Config{
		ScriptsRefspec:    getEnv("ph_scripts_refspec", defaultScriptsRefspec),
		BuildableDiff:     getEnv("ph_buildable_diff", ""),
		BuildableRevision: getEnv("ph_buildable_revision", ""),
		BuildID:           getEnv("ph_build_id", ""),
		NoCache:           isSet("ph_no_cache"),
		Projects:          getEnv("ph_projects", detectProjects),
		LogLevel:          getEnv("ph_log_level", "INFO"),
		TargetPHID:        phid,
		HasTargetPHID:     hasPHID,
		SkipGenerated:     isSet("ph_skip_generated"),
		SkipLinux:         isSet("ph_skip_linux"),
		SkipWindows:       isSet("ph_skip_windows"),
		DependenciesFile:  getEnv("ph_dependencies_file", ""),
		StepsGenerators:   stepsGenerators,
	}

	var err error
	if config.LinuxAgents, err = parseAgents("ph_linux_agents", map[string]string{"queue": "linux"}); err != nil {
		return nil, err
	}
	if config.WindowsAgents, err = parseAgents("ph_windows_agents", map[string]string{"queue": "windows"}); err != nil {
		return nil, err
	}
	return &config, nil
}
