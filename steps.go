package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mohae/deepcopy"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const scriptsRepository = "https://github.com/google/llvm-premerge-checks.git"

var buildArtifacts = []string{"artifacts/**/*", "*_result.json", "build/test-results.xml"}

type AutomaticRetry struct {
	ExitStatus int `yaml:"exit_status"`
	Limit      int `yaml:"limit"`
}

type Retry struct {
	Automatic []AutomaticRetry `yaml:"automatic"`
}

// Step is a Buildkite command step.
type Step struct {
	Label            string            `yaml:"label"`
	Key              string            `yaml:"key,omitempty"`
	Commands         []string          `yaml:"commands"`
	ArtifactPaths    []string          `yaml:"artifact_paths,omitempty"`
	Agents           map[string]string `yaml:"agents,omitempty"`
	TimeoutInMinutes int               `yaml:"timeout_in_minutes,omitempty"`
	Retry            *Retry            `yaml:"retry,omitempty"`
}

type WaitStep struct {
	Wait              string `yaml:"wait"`
	ContinueOnFailure bool   `yaml:"continue_on_failure"`
}

func agentRetry() *Retry {
	return &Retry{Automatic: []AutomaticRetry{
		{ExitStatus: -1, Limit: 2},  // agent lost
		{ExitStatus: 255, Limit: 2}, // forced agent shutdown
	}}
}

func copyAgents(agents map[string]string) map[string]string {
	return deepcopy.Copy(agents).(map[string]string)
}

// checkoutScripts clones the premerge scripts at refspec and leaves $SRC (or
// %SCRIPTS_DIR% on windows) pointing at them.
func checkoutScripts(targetOS, refspec string) []string {
	if targetOS == "windows" {
		return []string{
			`set SRC=%cd%`,
			fmt.Sprintf(`git clone -q %s "%%SRC%%\..\llvm-premerge-checks"`, scriptsRepository),
			`cd "%SRC%\..\llvm-premerge-checks"`,
			fmt.Sprintf(`git fetch origin "%s"`, refspec),
			`git checkout FETCH_HEAD`,
			`cd "%SRC%"`,
			`set SCRIPTS_DIR=%SRC%\..\llvm-premerge-checks\scripts`,
		}
	}
	return []string{
		`export SRC=$${BUILDKITE_BUILD_PATH}/llvm-premerge-checks`,
		`rm -rf $${SRC}`,
		fmt.Sprintf(`git clone --depth 1 %s "$${SRC}"`, scriptsRepository),
		`cd $${SRC}`,
		fmt.Sprintf(`git fetch origin "%s":x`, refspec),
		`git checkout x`,
		`echo "llvm-premerge-checks commit"`,
		`git rev-parse HEAD`,
		`pip install -q -r $${SRC}/scripts/requirements.txt`,
		`cd "$$BUILDKITE_BUILD_CHECKOUT_PATH"`,
	}
}

func genericLinux(config *Config, projects string, checkDiff bool) []interface{} {
	if config.SkipLinux {
		log.Info("ph_skip_linux is set, skipping linux build")
		return []interface{}{}
	}

	commands := make([]string, 0)
	if config.NoCache {
		commands = append(commands, "ccache -C")
	}
	commands = append(commands, checkoutScripts("linux", config.ScriptsRefspec)...)
	checks := ""
	if checkDiff {
		checks = "--check-clang-format --check-clang-tidy "
	}
	commands = append(commands,
		"set +e",
		fmt.Sprintf(`$${SRC}/scripts/premerge_checks.py %s--projects="%s" --log-level=%s`, checks, projects, config.LogLevel),
		"EXIT_STATUS=$$?",
		`echo "--- ccache stats"`,
		"ccache --print-stats",
		"ccache --show-stats",
		"exit $$EXIT_STATUS",
	)

	return []interface{}{&Step{
		Label:            ":linux: x64 debian",
		Key:              "linux",
		Commands:         commands,
		ArtifactPaths:    buildArtifacts,
		Agents:           copyAgents(config.LinuxAgents),
		TimeoutInMinutes: 120,
		Retry:            agentRetry(),
	}}
}

func genericWindows(config *Config, projects string) []interface{} {
	if config.SkipWindows {
		log.Info("ph_skip_windows is set, skipping windows build")
		return []interface{}{}
	}

	commands := make([]string, 0)
	if config.NoCache {
		commands = append(commands, `powershell -command "sccache --stop-server; echo \$env:SCCACHE_DIR; `+
			`Remove-Item -Recurse -Force -ErrorAction Ignore \$env:SCCACHE_DIR; sccache --start-server"`)
	}
	commands = append(commands, "sccache --zero-stats")
	commands = append(commands, checkoutScripts("windows", config.ScriptsRefspec)...)
	commands = append(commands, `powershell -command "`+
		fmt.Sprintf(`python \$env:SCRIPTS_DIR/premerge_checks.py --projects='%s' --log-level=%s; `, projects, config.LogLevel)+
		`\$exit=\$?;sccache --show-stats;if (\$exit) {  echo "success";  exit 0; } else {  echo "failure";  exit 1;}"`)

	return []interface{}{&Step{
		Label:            ":windows: x64 windows",
		Key:              "windows",
		Commands:         commands,
		ArtifactPaths:    buildArtifacts,
		Agents:           copyAgents(config.WindowsAgents),
		TimeoutInMinutes: 90,
		Retry:            agentRetry(),
	}}
}

// expandEnv behaves like os.ExpandEnv but leaves unknown variables untouched.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return "${" + name + "}"
	})
}

// parseSteps collects the steps of every document in a multi-document pipeline.
// Steps decoded before an error are returned along with it.
func parseSteps(data []byte) ([]interface{}, error) {
	steps := make([]interface{}, 0)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var part struct {
			Steps []interface{} `yaml:"steps"`
		}
		err := decoder.Decode(&part)
		if err == io.EOF {
			return steps, nil
		}
		if err != nil {
			return steps, err
		}
		for _, step := range part.Steps {
			steps = append(steps, deepcopy.Copy(step))
		}
	}
}

// fromShellOutput runs command and returns the steps it prints. A failing
// command or malformed output only logs an error.
func fromShellOutput(run commandRunner, command string) []interface{} {
	path := expandEnv(command)
	log.Debugf("invoking %q", path)
	out, stderr, err := run("sh", "-c", path)
	log.Debugf("exit code: %d, stdout: %q, stderr: %q", exitCode(err), out, stderr)
	if err != nil {
		log.Errorf("%s returned non-zero exit code: %d", path, exitCode(err))
		return []interface{}{}
	}

	steps, err := parseSteps([]byte(out))
	if err != nil {
		log.Errorf("%q produced malformed YAML, exception:\n%s\n\nstderr: >>>%s<<<\n\nstdout: >>>%s<<<", path, err, stderr, out)
	}
	return steps
}
