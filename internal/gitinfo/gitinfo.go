// Package gitinfo collects repository metadata for the manifest chunk.
package gitinfo

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/DhruvDh/context-gather/internal/types"
)

// commitSubjectCount is how many recent commit subjects are collected.
const commitSubjectCount = 5

// Collect gathers the current branch name, recent commit subjects, and
// changed-file paths for the repository containing directory. The error marks
// the metadata unavailable; callers render a placeholder instead of failing.
func Collect(directory string) (*types.GitInfo, error) {
	branch, branchError := runGit(directory, "rev-parse", "--abbrev-ref", "HEAD")
	if branchError != nil {
		return nil, fmt.Errorf("resolve branch: %w", branchError)
	}

	info := &types.GitInfo{Branch: strings.TrimSpace(branch)}

	subjects, subjectsError := runGit(directory, "log", fmt.Sprintf("-%d", commitSubjectCount), "--pretty=%s")
	if subjectsError == nil {
		for _, subject := range strings.Split(subjects, "\n") {
			trimmed := strings.TrimSpace(subject)
			if trimmed != "" {
				info.CommitSubjects = append(info.CommitSubjects, trimmed)
			}
		}
	}

	status, statusError := runGit(directory, "status", "--porcelain")
	if statusError == nil {
		for _, line := range strings.Split(status, "\n") {
			if len(line) <= 3 {
				continue
			}
			changedPath := strings.TrimSpace(line[3:])
			if changedPath != "" {
				info.ChangedPaths = append(info.ChangedPaths, changedPath)
			}
		}
	}

	return info, nil
}

func runGit(directory string, arguments ...string) (string, error) {
	// #nosec G204
	command := exec.Command("git", arguments...)
	command.Dir = directory
	output, runError := command.Output()
	if runError != nil {
		return "", runError
	}
	return string(output), nil
}
