// Package gather expands user paths into an ordered, filtered list of
// in-memory file contents ready for packing.
package gather

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DhruvDh/context-gather/internal/config"
	"github.com/DhruvDh/context-gather/internal/types"
	"github.com/DhruvDh/context-gather/internal/utils"
)

// readConcurrency bounds the number of files read at once.
const readConcurrency = 8

// Options configures one collection run.
type Options struct {
	// Paths are the user-provided inputs; glob patterns that match nothing
	// are treated as literal paths.
	Paths []string
	// ExcludePatterns removes matching candidates. The run is rejected when
	// every provided pattern is invalid.
	ExcludePatterns []string
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64
	// UseGitignore and UseIgnoreFile control which ignore files are honored
	// while walking directories.
	UseGitignore  bool
	UseIgnoreFile bool
	// IncludeGit keeps the .git directory in the walk.
	IncludeGit bool
	// WorkingDirectory anchors relative output paths. Defaults to the
	// process working directory.
	WorkingDirectory string
	Logger           *zap.Logger
}

// CollectFiles expands the configured paths, walks directories honoring
// ignore files, filters oversize and binary files, and reads the survivors
// into memory in deterministic folder-then-path order.
func CollectFiles(ctx context.Context, options Options) ([]types.FileContent, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return nil, fmt.Errorf("unable to determine working directory: %w", workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}

	expandedPaths, expandError := ExpandPaths(options.Paths)
	if expandError != nil {
		return nil, expandError
	}
	validatedPaths, validationError := resolveAndValidatePaths(expandedPaths)
	if validationError != nil {
		return nil, validationError
	}

	var candidateFiles []string
	for _, pathInformation := range validatedPaths {
		if !pathInformation.IsDir {
			candidateFiles = append(candidateFiles, pathInformation.AbsolutePath)
			continue
		}
		walkedFiles, walkError := walkDirectory(pathInformation.AbsolutePath, options, logger)
		if walkError != nil {
			return nil, walkError
		}
		candidateFiles = append(candidateFiles, walkedFiles...)
	}

	candidateFiles = utils.DeduplicatePatterns(candidateFiles)
	sort.Strings(candidateFiles)

	filteredFiles, excludeError := applyExcludes(candidateFiles, options.ExcludePatterns, workingDirectory)
	if excludeError != nil {
		return nil, excludeError
	}

	return readFileContents(ctx, filteredFiles, workingDirectory, options.MaxFileSize, logger)
}

// ExpandPaths resolves glob patterns in the provided inputs. A pattern with no
// matches is kept as a literal path.
func ExpandPaths(paths []string) ([]string, error) {
	var expanded []string
	for _, inputPath := range paths {
		pattern := strings.ReplaceAll(inputPath, "\\", "/")
		matches, globError := filepath.Glob(pattern)
		if globError != nil {
			return nil, fmt.Errorf("invalid glob pattern %s: %w", pattern, globError)
		}
		if len(matches) == 0 {
			expanded = append(expanded, inputPath)
			continue
		}
		expanded = append(expanded, matches...)
	}
	return expanded, nil
}

// resolveAndValidatePaths converts input paths to absolute form and validates their existence.
func resolveAndValidatePaths(inputs []string) ([]types.ValidatedPath, error) {
	seen := make(map[string]struct{})
	var result []types.ValidatedPath
	for _, inputPath := range inputs {
		absolutePath, absolutePathError := filepath.Abs(inputPath)
		if absolutePathError != nil {
			return nil, fmt.Errorf("abs failed for '%s': %w", inputPath, absolutePathError)
		}
		cleanPath := filepath.Clean(absolutePath)
		if _, ok := seen[cleanPath]; ok {
			continue
		}
		info, fileStatusError := os.Stat(cleanPath)
		if fileStatusError != nil {
			if os.IsNotExist(fileStatusError) {
				return nil, fmt.Errorf("path '%s' does not exist", inputPath)
			}
			return nil, fmt.Errorf("stat failed for '%s': %w", inputPath, fileStatusError)
		}
		seen[cleanPath] = struct{}{}
		result = append(result, types.ValidatedPath{AbsolutePath: cleanPath, IsDir: info.IsDir()})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no valid paths")
	}
	return result, nil
}

// walkDirectory gathers every file under root that survives the directory's
// ignore patterns.
func walkDirectory(root string, options Options, logger *zap.Logger) ([]string, error) {
	ignorePatterns, loadError := config.LoadCombinedIgnorePatterns(
		root, options.UseGitignore, options.UseIgnoreFile, options.IncludeGit)
	if loadError != nil {
		return nil, loadError
	}

	var files []string
	walkError := filepath.WalkDir(root, func(currentPath string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			logger.Warn("could not process entry", zap.String("path", currentPath), zap.Error(entryError))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if currentPath == root {
			return nil
		}
		relativePath := utils.RelativePathOrSelf(currentPath, root)
		if entry.IsDir() {
			if utils.ShouldIgnoreByPath(relativePath+"/", ignorePatterns) || utils.ShouldIgnoreByPath(relativePath, ignorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if utils.ShouldIgnoreByPath(relativePath, ignorePatterns) {
			return nil
		}
		files = append(files, currentPath)
		return nil
	})
	if walkError != nil {
		return nil, fmt.Errorf("walking %s: %w", root, walkError)
	}
	return files, nil
}

// applyExcludes drops candidates matching any exclusion glob. Patterns are
// matched against both the path relative to the working directory and the
// absolute path, in forward-slash form.
func applyExcludes(candidates []string, patterns []string, workingDirectory string) ([]string, error) {
	if len(patterns) == 0 {
		return candidates, nil
	}

	var validPatterns []string
	for _, patternValue := range patterns {
		normalized := strings.ReplaceAll(patternValue, "\\", "/")
		if _, matchError := filepath.Match(normalized, ""); matchError != nil {
			continue
		}
		validPatterns = append(validPatterns, normalized)
	}
	if len(validPatterns) == 0 {
		return nil, fmt.Errorf("every exclude pattern was invalid: %v", patterns)
	}

	var kept []string
	for _, candidate := range candidates {
		absoluteSlash := filepath.ToSlash(candidate)
		relativeSlash := utils.RelativePathOrSelf(candidate, workingDirectory)
		excluded := false
		for _, patternValue := range validPatterns {
			if matched, _ := filepath.Match(patternValue, relativeSlash); matched {
				excluded = true
				break
			}
			if matched, _ := filepath.Match(patternValue, absoluteSlash); matched {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, candidate)
		}
	}
	return kept, nil
}

// readFileContents loads the candidate files with bounded concurrency,
// skipping oversize and binary files with a warning, and returns the
// survivors ordered by folder then path.
func readFileContents(ctx context.Context, candidates []string, workingDirectory string, maxFileSize int64, logger *zap.Logger) ([]types.FileContent, error) {
	results := make([]*types.FileContent, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(readConcurrency)
	for candidateIndex, candidatePath := range candidates {
		candidateIndex, candidatePath := candidateIndex, candidatePath
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			content, readError := readFile(candidatePath, workingDirectory, maxFileSize)
			if readError != nil {
				logger.Warn(readError.Error())
				return nil
			}
			results[candidateIndex] = content
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}

	var files []types.FileContent
	for _, content := range results {
		if content != nil {
			files = append(files, *content)
		}
	}
	sort.SliceStable(files, func(left, right int) bool {
		if files[left].Folder != files[right].Folder {
			return files[left].Folder < files[right].Folder
		}
		return files[left].Path < files[right].Path
	})
	return files, nil
}

// readFile loads one file, rejecting oversize and binary content.
func readFile(absolutePath, workingDirectory string, maxFileSize int64) (*types.FileContent, error) {
	fileInformation, statError := os.Stat(absolutePath)
	if statError != nil {
		return nil, fmt.Errorf("stat %s: %w", absolutePath, statError)
	}
	if maxFileSize > 0 && fileInformation.Size() > maxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes; skipping", absolutePath, maxFileSize)
	}
	if utils.IsFileBinary(absolutePath) {
		return nil, fmt.Errorf("%s appears to be a binary file; skipping", absolutePath)
	}
	data, readError := os.ReadFile(absolutePath)
	if readError != nil {
		return nil, fmt.Errorf("read %s: %w", absolutePath, readError)
	}

	relativePath := utils.RelativePathOrSelf(absolutePath, workingDirectory)
	return &types.FileContent{
		Folder: path.Dir(relativePath),
		Path:   relativePath,
		Text:   string(data),
	}, nil
}
