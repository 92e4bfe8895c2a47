package main

import (
	"fmt"
	"net/url"
	"os"

	log "github.com/sirupsen/logrus"
)

const issueTracker = "https://github.com/google/llvm-premerge-checks/issues/new"

var annotationStyles = map[string]bool{
	"default": true,
	"info":    true,
	"success": true,
	"warning": true,
	"error":   true,
}

// buildkiteAgent reports to the running build through the buildkite-agent CLI.
// Failed calls are logged and never abort the pipeline upload.
type buildkiteAgent struct {
	run commandRunner
}

func newBuildkiteAgent(run commandRunner) *buildkiteAgent {
	return &buildkiteAgent{run: run}
}

// annotate adds an annotation to the current build. The last style applied to
// a context wins.
func (a *buildkiteAgent) annotate(message, style, context string, appendTo bool) error {
	if !annotationStyles[style] {
		return fmt.Errorf("unknown annotation style %q", style)
	}
	if context == "" {
		context = "default"
	}
	args := []string{"annotate", message, "--style", style, "--context", context}
	if appendTo {
		args = append(args, "--append")
	}
	if _, _, err := a.run("buildkite-agent", args...); err != nil {
		log.Warnf("annotate call failed: %s", err)
	}
	return nil
}

func (a *buildkiteAgent) setMetadata(key, value string) {
	if _, _, err := a.run("buildkite-agent", "meta-data", "set", key, value); err != nil {
		log.Warnf("setting meta-data %s failed: %s", key, err)
	}
}

func feedbackURL() string {
	title := fmt.Sprintf("buildkite build %s %s", os.Getenv("BUILDKITE_PIPELINE_SLUG"), os.Getenv("BUILDKITE_BUILD_NUMBER"))
	return issueTracker + "?assignees=&labels=bug&template=bug_report.md&title=" + url.PathEscape(title)
}
