package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		ScriptsRefspec:  "main",
		Projects:        detectProjects,
		LogLevel:        "INFO",
		LinuxAgents:     map[string]string{"queue": "linux"},
		WindowsAgents:   map[string]string{"queue": "windows"},
		StepsGenerators: []string{"generate.sh"},
	}
}

func TestCheckoutScripts(t *testing.T) {
	assert := assert.New(t)

	linux := checkoutScripts("linux", "refs/heads/feature")
	assert.Contains(linux, `git fetch origin "refs/heads/feature":x`)
	assert.Equal(`export SRC=$${BUILDKITE_BUILD_PATH}/llvm-premerge-checks`, linux[0])
	assert.Equal(`cd "$$BUILDKITE_BUILD_CHECKOUT_PATH"`, linux[len(linux)-1])

	windows := checkoutScripts("windows", "main")
	assert.Contains(windows, `git fetch origin "main"`)
	assert.Equal(`set SCRIPTS_DIR=%SRC%\..\llvm-premerge-checks\scripts`, windows[len(windows)-1])
}

func TestGenericLinux(t *testing.T) {
	assert := assert.New(t)
	config := testConfig()

	steps := genericLinux(config, "clang;llvm", true)
	require.Len(t, steps, 1)
	step := steps[0].(*Step)
	assert.Equal(":linux: x64 debian", step.Label)
	assert.Equal("linux", step.Key)
	assert.Equal(120, step.TimeoutInMinutes)
	assert.Equal(map[string]string{"queue": "linux"}, step.Agents)
	assert.Equal([]string{"artifacts/**/*", "*_result.json", "build/test-results.xml"}, step.ArtifactPaths)
	assert.Equal([]AutomaticRetry{{ExitStatus: -1, Limit: 2}, {ExitStatus: 255, Limit: 2}}, step.Retry.Automatic)
	assert.Contains(step.Commands,
		`$${SRC}/scripts/premerge_checks.py --check-clang-format --check-clang-tidy --projects="clang;llvm" --log-level=INFO`)
	assert.NotContains(step.Commands, "ccache -C")

	// agents are copied per step
	step.Agents["queue"] = "changed"
	assert.Equal("linux", config.LinuxAgents["queue"])

	config.NoCache = true
	step = genericLinux(config, "llvm", false)[0].(*Step)
	assert.Equal("ccache -C", step.Commands[0])
	assert.Contains(step.Commands, `$${SRC}/scripts/premerge_checks.py --projects="llvm" --log-level=INFO`)

	config.SkipLinux = true
	assert.Empty(genericLinux(config, "llvm", true))
}

func TestGenericWindows(t *testing.T) {
	assert := assert.New(t)
	config := testConfig()
	config.WindowsAgents = map[string]string{"queue": "windows-big"}

	steps := genericWindows(config, "clang;llvm")
	require.Len(t, steps, 1)
	step := steps[0].(*Step)
	assert.Equal(":windows: x64 windows", step.Label)
	assert.Equal("windows", step.Key)
	assert.Equal(90, step.TimeoutInMinutes)
	assert.Equal(map[string]string{"queue": "windows-big"}, step.Agents)
	assert.Equal("sccache --zero-stats", step.Commands[0])
	assert.Contains(step.Commands[len(step.Commands)-1], `--projects='clang;llvm' --log-level=INFO`)

	config.NoCache = true
	step = genericWindows(config, "llvm")[0].(*Step)
	assert.Contains(step.Commands[0], "sccache --stop-server")

	config.SkipWindows = true
	assert.Empty(genericWindows(config, "llvm"))
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("PH_TEST_CHECKOUT", "/build/src")
	defer os.Unsetenv("PH_TEST_CHECKOUT")

	assert.Equal(t, "/build/src/libcxx/gen.sh", expandEnv("${PH_TEST_CHECKOUT}/libcxx/gen.sh"))
	assert.Equal(t, "${PH_TEST_UNKNOWN}/gen.sh", expandEnv("${PH_TEST_UNKNOWN}/gen.sh"))
}

func TestFromShellOutput(t *testing.T) {
	output := `
steps:
  - label: libcxx C++11
    command: make check-cxx
---
env:
  FOO: bar
steps:
  - label: libcxx C++17
    command: make check-cxx
  - wait
`
	var invoked []string
	run := func(program string, args ...string) (string, string, error) {
		invoked = append([]string{program}, args...)
		return output, "", nil
	}

	steps := fromShellOutput(run, "generate.sh")
	assert.Equal(t, []string{"sh", "-c", "generate.sh"}, invoked)
	require.Len(t, steps, 3)
	first := steps[0].(map[interface{}]interface{})
	assert.Equal(t, "libcxx C++11", first["label"])
	assert.Equal(t, "wait", steps[2])
}

func TestFromShellOutputFailures(t *testing.T) {
	failing := func(program string, args ...string) (string, string, error) {
		return "steps:\n  - label: a\n", "boom", errors.New("exit status 1")
	}
	assert.Empty(t, fromShellOutput(failing, "generate.sh"))

	malformed := func(program string, args ...string) (string, string, error) {
		return "steps:\n  - label: a\n---\nsteps:\n  - label: b\n  bad: [\n", "", nil
	}
	steps := fromShellOutput(malformed, "generate.sh")
	require.Len(t, steps, 1)
	assert.Equal(t, "a", steps[0].(map[interface{}]interface{})["label"])

	assert.Empty(t, fromShellOutput(runCommand, "exit 2"))
}

func TestFromShellOutputRunsShell(t *testing.T) {
	steps := fromShellOutput(runCommand, `printf 'steps:\n  - label: generated\n'`)
	require.Len(t, steps, 1)
	assert.Equal(t, "generated", steps[0].(map[interface{}]interface{})["label"])
}
