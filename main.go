package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func setupLogging(level string) {
	ll, err := log.ParseLevel(level)
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
}

func runPipeline(run commandRunner, out io.Writer) error {
	config, err := NewConfig()
	if err != nil {
		return err
	}
	setupLogging(config.LogLevel)

	agent := newBuildkiteAgent(run)
	if err := reportBuild(agent, config); err != nil {
		return err
	}

	cp, err := LoadChooseProjects(config.DependenciesFile)
	if err != nil {
		return err
	}
	patch, err := gitDiff(run, "HEAD~1")
	if err != nil {
		return err
	}
	files, err := changedFiles(patch)
	if err != nil {
		return err
	}

	pipeline := generatePipeline(config, cp, files, func(command string) []interface{} {
		return fromShellOutput(run, command)
	})

	data, err := yaml.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("marshalling pipeline: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func newChooseProjectsCmd() *cobra.Command {
	var targetOS, dependencies string
	var targets bool

	cmd := &cobra.Command{
		Use:   "choose-projects [llvm-dir]",
		Short: "Print the projects affected by a patch read from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(getEnv("ph_log_level", "INFO"))
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			cp, err := LoadChooseProjects(dependencies)
			if err != nil {
				return err
			}
			patch, err := ioutil.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading patch: %w", err)
			}
			projects, err := cp.Choose(dir, string(patch), targetOS)
			if err != nil {
				return err
			}
			if targets {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(cp.CheckTargets(newProjectSet(projects...)), " "))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(projects, ";"))
			return nil
		},
	}
	cmd.Flags().StringVar(&targetOS, "os", detectOS(), "platform to choose projects for (linux or windows)")
	cmd.Flags().StringVar(&dependencies, "dependencies", "", "project dependency config (defaults to the built-in one)")
	cmd.Flags().BoolVar(&targets, "targets", false, "print ninja check targets instead of project names")
	return cmd
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipeline-premerge",
		Short:         "Generate the pre-merge Buildkite pipeline for the change under test",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(runCommand, cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(newChooseProjectsCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
