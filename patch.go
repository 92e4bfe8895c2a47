package main

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	sgdiff "github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

func patchPath(name, prefix string) string {
	if name == "" || name == devNull {
		return ""
	}
	return strings.TrimPrefix(name, prefix)
}

// changedFiles lists every path modified, added or removed by a unified diff.
func changedFiles(patch string) ([]string, error) {
	if strings.TrimSpace(patch) == "" {
		return []string{}, nil
	}

	fileDiffs, err := sgdiff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}

	files := make([]string, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		// renames touch both sides
		if name := patchPath(fd.OrigName, "a/"); name != "" {
			files = append(files, name)
		}
		if name := patchPath(fd.NewName, "b/"); name != "" {
			files = append(files, name)
		}
	}

	files = dedupe(files)
	sort.Strings(files)
	log.Infof("Files modified by this patch:\n  %s", strings.Join(files, "\n  "))
	return files, nil
}
