package main

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const reviewsURL = "https://reviews.llvm.org"

type Pipeline struct {
	Steps []interface{} `yaml:"steps"`
}

// stepGenerator turns a script invocation into pipeline steps.
type stepGenerator func(command string) []interface{}

func reportBuild(agent *buildkiteAgent, config *Config) error {
	revision := config.BuildableRevision
	diffURL := fmt.Sprintf("%s/D%s?id=%s", reviewsURL, revision, config.BuildableDiff)
	message := fmt.Sprintf("Build for [D%s#%s](%s). [Harbormaster build](%s/harbormaster/build/%s).\n"+
		"If there is a build infrastructure issue, please [create a bug](%s).",
		revision, config.BuildableDiff, diffURL, reviewsURL, config.BuildID, feedbackURL())
	if err := agent.annotate(message, "default", "", true); err != nil {
		return err
	}
	agent.setMetadata("ph_buildable_diff", config.BuildableDiff)
	agent.setMetadata("ph_buildable_revision", config.BuildableRevision)
	agent.setMetadata("ph_build_id", config.BuildID)
	return nil
}

// selectProjects returns the projects touched by files together with their
// dependents and dependencies.
func selectProjects(cp *ChooseProjects, files []string) projectSet {
	modified, unmapped := cp.ChangedProjects(files)
	if unmapped {
		log.Warn("There were changes that could not be mapped to a project. Checking everything")
		modified = cp.AllProjects()
	}
	log.Infof("modified projects: %v", modified)

	affected := cp.AffectedProjects(modified)
	projects := cp.AddDependencies(affected)
	log.Infof("projects with dependencies: %v", projects)
	return projects
}

func reportStep(refspec string) *Step {
	return &Step{
		Label:            ":phabricator: update build status on Phabricator",
		Commands:         append(checkoutScripts("linux", refspec), "$${SRC}/scripts/summary.py"),
		ArtifactPaths:    []string{"artifacts/**/*"},
		Agents:           map[string]string{"queue": "service"},
		TimeoutInMinutes: 10,
	}
}

func generatePipeline(config *Config, cp *ChooseProjects, files []string, generate stepGenerator) *Pipeline {
	projects := selectProjects(cp, files)
	steps := make([]interface{}, 0)

	excludedLinux := cp.Excluded("linux")
	log.Infof("excluded for linux: %v", excludedLinux)
	if linuxProjects := projects.minus(excludedLinux); len(linuxProjects) > 0 {
		steps = append(steps, genericLinux(config, strings.Join(linuxProjects.sorted(), ";"), true)...)
	}

	excludedWindows := cp.Excluded("windows")
	log.Infof("excluded for windows: %v", excludedWindows)
	if windowsProjects := projects.minus(excludedWindows); len(windowsProjects) > 0 {
		steps = append(steps, genericWindows(config, strings.Join(windowsProjects.sorted(), ";"))...)
	}

	if !config.SkipGenerated {
		for _, gen := range config.StepsGenerators {
			steps = append(steps, generate(gen)...)
		}
	}

	if !config.HasTargetPHID {
		log.Warn(`ph_target_phid is not specified. Skipping "Report" step`)
	} else {
		steps = append(steps,
			&WaitStep{Wait: "~", ContinueOnFailure: true},
			reportStep(config.ScriptsRefspec),
		)
	}

	return &Pipeline{
		Steps: steps,
	}
}
