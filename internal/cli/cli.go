// Package cli provides the command line interface.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DhruvDh/context-gather/internal/chunk"
	"github.com/DhruvDh/context-gather/internal/config"
	"github.com/DhruvDh/context-gather/internal/gather"
	"github.com/DhruvDh/context-gather/internal/gitinfo"
	"github.com/DhruvDh/context-gather/internal/services/clipboard"
	"github.com/DhruvDh/context-gather/internal/tokenizer"
	"github.com/DhruvDh/context-gather/internal/types"
	"github.com/DhruvDh/context-gather/internal/utils"
)

const (
	chunkSizeFlagName    = "chunk-size"
	chunkIndexFlagName   = "chunk-index"
	stdoutFlagName       = "stdout"
	noClipboardFlagName  = "no-clipboard"
	serveFlagName        = "serve"
	excludeFlagName      = "exclude"
	maxSizeFlagName      = "max-size"
	modelFlagName        = "model"
	modelContextFlagName = "model-context"
	escapeXMLFlagName    = "escape-xml"
	gitFlagName          = "git"
	multiStepFlagName    = "multi-step"
	noGitignoreFlagName  = "no-gitignore"
	noIgnoreFlagName     = "no-ignore"
	includeGitFlagName   = "include-git"
	configFlagName       = "config"
	versionFlagName      = "version"

	rootUse              = "context-gather [paths...]"
	rootShortDescription = "gather text files into token-bounded context chunks"
	rootLongDescription  = `context-gather reads text files, wraps them in attributed containers, and
packs them into token-bounded chunks suitable for pasting into a language
model context window. Chunk zero carries a manifest of every included file.
By default the first chunk is copied to the clipboard.`
	rootUsageExample = `  # Pack the current project into 8000-token chunks
  context-gather --chunk-size 8000 --stdout .

  # Copy chunk 2 of a chunked run
  context-gather --chunk-size 8000 --chunk-index 2 ./src

  # Everything in one unbounded chunk on stdout
  context-gather --stdout --no-clipboard .`

	versionTemplate = "context-gather version: %s\n"
	defaultPath     = "."

	chunkSizeFlagDescription    = "token budget per chunk (0 disables chunking)"
	chunkIndexFlagDescription   = "chunk to copy to the clipboard (-1 copies the first chunk)"
	stdoutFlagDescription       = "print chunk snippets to stdout"
	noClipboardFlagDescription  = "do not copy to the clipboard"
	serveFlagDescription        = "serve finished chunks interactively by number on stdin"
	excludeFlagDescription      = "glob pattern excluding files from processing"
	maxSizeFlagDescription      = "maximum file size in bytes before skipping files"
	modelFlagDescription        = "tokenizer model used for token counting"
	modelContextFlagDescription = "model context window; warn when total tokens exceed it"
	escapeXMLFlagDescription    = "escape markup characters in file bodies"
	gitFlagDescription          = "include repository metadata in the manifest chunk"
	multiStepFlagDescription    = "emit only the manifest chunk"
	noGitignoreFlagDescription  = "do not use .gitignore"
	noIgnoreFlagDescription     = "do not use .ignore"
	includeGitFlagDescription   = "include the git directory in traversal"
	configFlagDescription       = "explicit configuration file path"
	versionFlagDescription      = "display application version"

	chunkIndexRequiresSizeMessage = "--chunk-index requires --chunk-size"
	chunkIndexOutOfRangeFormat    = "--chunk-index %d out of range (0..%d)"
	workingDirectoryErrorFormat   = "unable to determine working directory: %w"
	summaryFormat                 = "✔ %d files • %d tokens • %d chunks • copied=%s\n"
	nothingVisibleNote            = "Note: neither --stdout nor clipboard copy requested; nothing visible."
	modelContextWarningFormat     = "token count %d exceeds model context limit %d"
	servePromptFormat             = "Enter chunk # (0..%d) or 'q' to quit: "
	serveCopiedFormat             = "✔ copied chunk %d\n"
	serveBannerFormat             = "▲ Serving %d chunks (0..%d).\n"
)

// rootOptions stores every flag value for the root command.
type rootOptions struct {
	chunkSize         int
	chunkIndex        int
	stdout            bool
	noClipboard       bool
	serve             bool
	excludePatterns   []string
	maxFileSize       int64
	model             string
	modelContext      int
	escapeXML         bool
	includeGitInfo    bool
	multiStep         bool
	disableGitignore  bool
	disableIgnoreFile bool
	includeGitDir     bool
	configFilePath    string
}

// Execute runs the context-gather application.
func Execute(logger *zap.Logger) error {
	rootCommand := createRootCommand(logger)
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand(logger *zap.Logger) *cobra.Command {
	var showVersion bool
	var options rootOptions

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		Example:      rootUsageExample,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 {
				arguments = []string{defaultPath}
			}
			return runGather(command, arguments, options, logger)
		},
	}

	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	flags := rootCommand.Flags()
	flags.IntVarP(&options.chunkSize, chunkSizeFlagName, "c", types.DefaultChunkSize, chunkSizeFlagDescription)
	flags.IntVar(&options.chunkIndex, chunkIndexFlagName, -1, chunkIndexFlagDescription)
	flags.BoolVar(&options.stdout, stdoutFlagName, false, stdoutFlagDescription)
	flags.BoolVar(&options.noClipboard, noClipboardFlagName, false, noClipboardFlagDescription)
	flags.BoolVar(&options.serve, serveFlagName, false, serveFlagDescription)
	flags.StringArrayVar(&options.excludePatterns, excludeFlagName, nil, excludeFlagDescription)
	flags.Int64Var(&options.maxFileSize, maxSizeFlagName, types.DefaultMaxFileSize, maxSizeFlagDescription)
	flags.StringVar(&options.model, modelFlagName, tokenizer.DefaultModel, modelFlagDescription)
	flags.IntVar(&options.modelContext, modelContextFlagName, 0, modelContextFlagDescription)
	flags.BoolVar(&options.escapeXML, escapeXMLFlagName, false, escapeXMLFlagDescription)
	flags.BoolVar(&options.includeGitInfo, gitFlagName, false, gitFlagDescription)
	flags.BoolVar(&options.multiStep, multiStepFlagName, false, multiStepFlagDescription)
	flags.BoolVar(&options.disableGitignore, noGitignoreFlagName, false, noGitignoreFlagDescription)
	flags.BoolVar(&options.disableIgnoreFile, noIgnoreFlagName, false, noIgnoreFlagDescription)
	flags.BoolVar(&options.includeGitDir, includeGitFlagName, false, includeGitFlagDescription)
	flags.StringVar(&options.configFilePath, configFlagName, "", configFlagDescription)

	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// applyConfiguration overlays file-provided defaults onto flags the user did
// not set explicitly.
func applyConfiguration(command *cobra.Command, options *rootOptions, configuration config.ApplicationConfiguration) {
	flags := command.Flags()
	if !flags.Changed(chunkSizeFlagName) && configuration.ChunkSize != nil {
		options.chunkSize = *configuration.ChunkSize
	}
	if !flags.Changed(modelFlagName) && configuration.Model != "" {
		options.model = configuration.Model
	}
	if !flags.Changed(modelContextFlagName) && configuration.ModelContext != nil {
		options.modelContext = *configuration.ModelContext
	}
	if !flags.Changed(maxSizeFlagName) && configuration.MaxFileSize != nil {
		options.maxFileSize = *configuration.MaxFileSize
	}
	if !flags.Changed(escapeXMLFlagName) && configuration.EscapeXML != nil {
		options.escapeXML = *configuration.EscapeXML
	}
	if !flags.Changed(noClipboardFlagName) && configuration.Clipboard != nil {
		options.noClipboard = !*configuration.Clipboard
	}
	if !flags.Changed(stdoutFlagName) && configuration.Stdout != nil {
		options.stdout = *configuration.Stdout
	}
	if !flags.Changed(gitFlagName) && configuration.Git != nil {
		options.includeGitInfo = *configuration.Git
	}
	if !flags.Changed(excludeFlagName) && len(configuration.Exclude) > 0 {
		options.excludePatterns = configuration.Exclude
	}
	if !flags.Changed(noGitignoreFlagName) && configuration.Paths.UseGitignore != nil {
		options.disableGitignore = !*configuration.Paths.UseGitignore
	}
	if !flags.Changed(noIgnoreFlagName) && configuration.Paths.UseIgnoreFile != nil {
		options.disableIgnoreFile = !*configuration.Paths.UseIgnoreFile
	}
	if !flags.Changed(includeGitFlagName) && configuration.Paths.IncludeGit != nil {
		options.includeGitDir = *configuration.Paths.IncludeGit
	}
}

// runGather executes one gather-pack-deliver run.
func runGather(command *cobra.Command, paths []string, options rootOptions, logger *zap.Logger) error {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return fmt.Errorf(workingDirectoryErrorFormat, workingDirectoryError)
	}

	configuration, configurationError := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: workingDirectory,
		ExplicitFilePath: options.configFilePath,
	})
	if configurationError != nil {
		return configurationError
	}
	applyConfiguration(command, &options, configuration)

	if options.chunkIndex >= 0 && options.chunkSize == 0 {
		return fmt.Errorf(chunkIndexRequiresSizeMessage)
	}

	counter, counterError := tokenizer.Init(options.model)
	if counterError != nil {
		return counterError
	}

	files, gatherError := gather.CollectFiles(context.Background(), gather.Options{
		Paths:            paths,
		ExcludePatterns:  options.excludePatterns,
		MaxFileSize:      options.maxFileSize,
		UseGitignore:     !options.disableGitignore,
		UseIgnoreFile:    !options.disableIgnoreFile,
		IncludeGit:       options.includeGitDir,
		WorkingDirectory: workingDirectory,
		Logger:           logger,
	})
	if gatherError != nil {
		return gatherError
	}

	var repositoryInfo *types.GitInfo
	if options.includeGitInfo {
		collectedInfo, collectError := gitinfo.Collect(workingDirectory)
		if collectError != nil {
			logger.Warn("git info unavailable", zap.Error(collectError))
		} else {
			repositoryInfo = collectedInfo
		}
	}

	result, buildError := chunk.Build(files, chunk.Options{
		Limit:      options.chunkSize,
		EscapeXML:  options.escapeXML,
		MultiStep:  options.multiStep,
		IncludeGit: options.includeGitInfo,
		Git:        repositoryInfo,
		Counter:    counter,
		Logger:     logger,
	})
	if buildError != nil {
		return buildError
	}

	return deliverChunks(command, options, files, result, logger)
}

// deliverChunks prints, copies, or serves the finished chunks and emits the
// run summary. No re-packing happens here; the chunks are final.
func deliverChunks(command *cobra.Command, options rootOptions, files []types.FileContent, result chunk.Result, logger *zap.Logger) error {
	chunks := result.Chunks
	copier := clipboard.NewService()

	copyIndex := options.chunkIndex
	if copyIndex == -1 && !options.noClipboard {
		copyIndex = 0
	}
	if copyIndex >= len(chunks) {
		return fmt.Errorf(chunkIndexOutOfRangeFormat, copyIndex, len(chunks)-1)
	}

	if options.serve {
		return serveChunks(command.InOrStdin(), command.OutOrStdout(), chunks, options, copier, logger)
	}

	for chunkIndex, renderedChunk := range chunks {
		if options.stdout {
			fmt.Fprint(command.OutOrStdout(), renderedChunk.Snippet)
		}
		if chunkIndex == copyIndex && !options.noClipboard {
			if copyError := copier.Copy(renderedChunk.Snippet); copyError != nil {
				logger.Warn("clipboard copy failed", zap.Error(copyError))
			}
		}
	}

	totalTokens := 0
	for _, renderedChunk := range chunks {
		totalTokens += renderedChunk.Tokens
	}
	copied := "none"
	if copyIndex >= 0 && !options.noClipboard {
		copied = strconv.Itoa(copyIndex)
	}
	fmt.Fprintf(command.OutOrStdout(), summaryFormat, len(files), totalTokens, len(chunks), copied)
	if options.noClipboard && !options.stdout {
		fmt.Fprintln(command.ErrOrStderr(), nothingVisibleNote)
	}
	if options.modelContext > 0 && totalTokens > options.modelContext {
		logger.Warn(fmt.Sprintf(modelContextWarningFormat, totalTokens, options.modelContext))
	}
	return nil
}

// serveChunks loops over the finished chunks, copying the selected snippet to
// the clipboard. Empty input advances to the next chunk; a number jumps to
// that chunk; 'q' quits.
func serveChunks(input io.Reader, output io.Writer, chunks []types.RenderedChunk, options rootOptions, copier clipboard.Copier, logger *zap.Logger) error {
	total := len(chunks)
	fmt.Fprintf(output, serveBannerFormat, total, total-1)

	reader := bufio.NewScanner(input)
	index := 0
	for {
		snippet := chunks[index].Snippet
		if !options.noClipboard {
			if copyError := copier.Copy(snippet); copyError != nil {
				logger.Warn("clipboard copy failed", zap.Error(copyError))
			} else {
				fmt.Fprintf(output, serveCopiedFormat, index)
			}
		}
		if options.stdout {
			fmt.Fprint(output, snippet)
		}

		fmt.Fprintf(output, servePromptFormat, total-1)
		if !reader.Scan() {
			return reader.Err()
		}
		request := strings.TrimSpace(reader.Text())
		if request == "q" {
			return nil
		}
		if request == "" {
			index = (index + 1) % total
			continue
		}
		parsedIndex, parseError := strconv.Atoi(request)
		if parseError == nil && parsedIndex >= 0 && parsedIndex < total {
			index = parsedIndex
		}
	}
}
