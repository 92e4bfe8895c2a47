package main

import (
	_ "embed"
	"fmt"
	"io/ioutil"
	"runtime"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

//go:embed llvm-dependencies.yaml
var defaultDependencies []byte

// https://github.com/go-yaml/yaml/issues/100
type StringArray []string

func (a *StringArray) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var multi []string
	err := unmarshal(&multi)
	if err != nil {
		var single string
		err := unmarshal(&single)
		if err != nil {
			return err
		}
		*a = []string{single}
	} else {
		*a = multi
	}
	return nil
}

// DependencyConfig is the on-disk description of the monorepo projects.
type DependencyConfig struct {
	Dependencies     map[string]StringArray `yaml:"dependencies"`
	ExcludedProjects map[string]StringArray `yaml:"excludedProjects"`
	AllProjects      map[string]StringArray `yaml:"allprojects"`
}

type projectSet map[string]bool

func newProjectSet(projects ...string) projectSet {
	s := make(projectSet, len(projects))
	for _, p := range projects {
		s[p] = true
	}
	return s
}

func (s projectSet) add(other projectSet) {
	for p := range other {
		s[p] = true
	}
}

func (s projectSet) clone() projectSet {
	c := make(projectSet, len(s))
	c.add(s)
	return c
}

func (s projectSet) minus(other projectSet) projectSet {
	result := make(projectSet)
	for p := range s {
		if !other[p] {
			result[p] = true
		}
	}
	return result
}

func (s projectSet) sorted() []string {
	list := make([]string, 0, len(s))
	for p := range s {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}

func (s projectSet) String() string {
	return "[" + strings.Join(s.sorted(), " ") + "]"
}

// ChooseProjects maps changed files to the projects that have to be built and tested.
type ChooseProjects struct {
	config DependencyConfig
	// transitive closure: compiler-rt -> {llvm, clang}
	dependencies map[string]projectSet
	// reverse of dependencies: llvm -> {clang, lldb, ...}
	usages      map[string]projectSet
	allProjects projectSet
}

func NewChooseProjects(data []byte) (*ChooseProjects, error) {
	cp := &ChooseProjects{
		dependencies: make(map[string]projectSet),
		usages:       make(map[string]projectSet),
		allProjects:  make(projectSet),
	}
	if err := yaml.Unmarshal(data, &cp.config); err != nil {
		return nil, fmt.Errorf("parse dependency config: %w", err)
	}

	for project, deps := range cp.config.Dependencies {
		cp.dependencies[project] = newProjectSet(deps...)
	}
	for {
		updated := false
		for _, deps := range cp.dependencies {
			extend := make(projectSet)
			for d := range deps {
				extend.add(cp.dependencies[d])
			}
			n := len(deps)
			deps.add(extend)
			if len(deps) > n {
				updated = true
			}
		}
		if !updated {
			break
		}
	}
	// dependencies are closed already, so usages are too
	for project, deps := range cp.dependencies {
		for d := range deps {
			if cp.usages[d] == nil {
				cp.usages[d] = make(projectSet)
			}
			cp.usages[d][project] = true
		}
	}
	for project := range cp.config.AllProjects {
		cp.allProjects[project] = true
	}

	log.Debugf("computed dependencies: %v", cp.dependencies)
	log.Debugf("computed usages: %v", cp.usages)
	return cp, nil
}

// LoadChooseProjects reads the dependency config from filename, or the embedded
// default when filename is empty.
func LoadChooseProjects(filename string) (*ChooseProjects, error) {
	if filename == "" {
		log.Debug("Loading embedded project config")
		return NewChooseProjects(defaultDependencies)
	}
	log.Infof("Loading project config from %s", filename)
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return NewChooseProjects(data)
}

func (cp *ChooseProjects) AllProjects() projectSet {
	return cp.allProjects.clone()
}

// ChangedProjects returns the projects directly touched by files and whether
// some file could not be attributed to any project.
func (cp *ChooseProjects) ChangedProjects(files []string) (projectSet, bool) {
	changed := make(projectSet)
	unmapped := false
	for _, file := range files {
		if file == "" {
			continue
		}
		project := strings.SplitN(file, "/", 2)[0]
		// utils is not a project
		if project == "utils" {
			continue
		}
		if !cp.allProjects[project] {
			unmapped = true
			log.Warnf("Could not map file to project: %s", file)
			continue
		}
		changed[project] = true
	}
	log.Infof("Projects directly modified by this patch: %v", changed)
	return changed, unmapped
}

// AffectedProjects adds every project that depends on a member of projects.
func (cp *ChooseProjects) AffectedProjects(projects projectSet) projectSet {
	affected := projects.clone()
	for p := range projects {
		affected.add(cp.usages[p])
	}
	log.Debugf("added %v projects as they are affected", affected.minus(projects))
	return affected
}

// AddDependencies adds everything the members of projects need to build.
func (cp *ChooseProjects) AddDependencies(projects projectSet) projectSet {
	result := projects.clone()
	for p := range projects {
		result.add(cp.dependencies[p])
	}
	log.Debugf("added %v dependencies", result.minus(projects))
	return result
}

// Excluded returns the projects that must not be built on targetOS, including
// everything that uses them.
func (cp *ChooseProjects) Excluded(targetOS string) projectSet {
	return cp.AffectedProjects(newProjectSet(cp.config.ExcludedProjects[targetOS]...))
}

func (cp *ChooseProjects) CheckTargets(projects projectSet) []string {
	if projects["all"] {
		return []string{"check-all"}
	}
	targets := make(projectSet)
	for p := range projects {
		targets.add(newProjectSet(cp.config.AllProjects[p]...))
	}
	return targets.sorted()
}

// MatchProjectDirs reports whether every known project is a directory in dir.
func (cp *ChooseProjects) MatchProjectDirs(dir string) bool {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		log.Errorf("Could not list %s: %s", dir, err)
		return false
	}
	subdirs := make(projectSet)
	for _, e := range entries {
		if e.IsDir() {
			subdirs[e.Name()] = true
		}
	}
	for _, project := range cp.allProjects.sorted() {
		if !subdirs[project] {
			log.Errorf("Project not found in root folder: %s", project)
			return false
		}
	}
	return true
}

// Extend removes projects excluded on targetOS from everything affected by
// projects and then adds their dependencies.
func (cp *ChooseProjects) Extend(projects projectSet, targetOS string) []string {
	affected := cp.AffectedProjects(projects)
	excluded := cp.Excluded(targetOS)
	log.Infof("all excluded projects %v", excluded)
	effective := affected.minus(excluded)
	log.Infof("effective projects list %v", effective)
	return cp.AddDependencies(effective).sorted()
}

// Choose lists the projects to test on targetOS for a patch applied to dir.
func (cp *ChooseProjects) Choose(dir, patch, targetOS string) ([]string, error) {
	if !cp.MatchProjectDirs(dir) {
		log.Warnf("%s does not look like a llvm-project directory", dir)
		return cp.Extend(cp.AllProjects(), targetOS), nil
	}
	files, err := changedFiles(patch)
	if err != nil {
		return nil, err
	}
	changed, unmapped := cp.ChangedProjects(files)
	if unmapped {
		log.Warn("There were changes that could not be mapped to a project. Building all projects instead!")
		return cp.Extend(cp.AllProjects(), targetOS), nil
	}
	return cp.Extend(changed, targetOS), nil
}

func detectOS() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "linux"
}
