package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// commandRunner runs a program and returns its stdout and stderr.
type commandRunner func(program string, args ...string) (string, string, error)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func isSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func dedupe(list []string) []string {
	unique := make([]string, 0)
	set := make(map[string]bool)

	for _, item := range list {
		_, ok := set[item]
		if !ok {
			set[item] = true
			unique = append(unique, item)
		}
	}
	return unique
}

func runCommand(program string, args ...string) (string, string, error) {
	cmd := exec.Command(program, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return out.String(), stderr.String(), fmt.Errorf("%s %s: %w: %s", program, strings.Join(args, " "), err, stderr.String())
	}
	return out.String(), stderr.String(), nil
}

// exitCode extracts the process exit status from an error returned by runCommand.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func gitDiff(run commandRunner, ref string) (string, error) {
	log.Debugf("Running git diff against %s", ref)
	out, _, err := run("git", "diff", ref)
	if err != nil {
		return "", fmt.Errorf("diffing against %s: %w", ref, err)
	}
	return out, nil
}
