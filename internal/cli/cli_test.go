package cli

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/DhruvDh/context-gather/internal/config"
	"github.com/DhruvDh/context-gather/internal/types"
)

// recordingCopier captures every snippet sent to the clipboard.
type recordingCopier struct {
	copied []string
}

func (copier *recordingCopier) Copy(text string) error {
	copier.copied = append(copier.copied, text)
	return nil
}

func serveFixtures() []types.RenderedChunk {
	return []types.RenderedChunk{
		{Snippet: "header\n", Tokens: 2},
		{Snippet: "first body\n", Tokens: 3},
		{Snippet: "second body\n", Tokens: 3},
	}
}

func TestServeChunksAdvancesOnEmptyInput(t *testing.T) {
	copier := &recordingCopier{}
	input := strings.NewReader("\n\nq\n")
	var output strings.Builder

	serveError := serveChunks(input, &output, serveFixtures(), rootOptions{}, copier, zap.NewNop())
	if serveError != nil {
		t.Fatalf("serveChunks error: %v", serveError)
	}

	if len(copier.copied) != 3 {
		t.Fatalf("expected three copies, got %d", len(copier.copied))
	}
	if copier.copied[0] != "header\n" || copier.copied[1] != "first body\n" || copier.copied[2] != "second body\n" {
		t.Fatalf("unexpected copy order: %v", copier.copied)
	}
	if !strings.Contains(output.String(), "Serving 3 chunks (0..2)") {
		t.Fatalf("expected the serve banner: %q", output.String())
	}
}

func TestServeChunksJumpsToRequestedChunk(t *testing.T) {
	copier := &recordingCopier{}
	input := strings.NewReader("2\nq\n")
	var output strings.Builder

	serveError := serveChunks(input, &output, serveFixtures(), rootOptions{}, copier, zap.NewNop())
	if serveError != nil {
		t.Fatalf("serveChunks error: %v", serveError)
	}

	if len(copier.copied) != 2 {
		t.Fatalf("expected two copies, got %d", len(copier.copied))
	}
	if copier.copied[1] != "second body\n" {
		t.Fatalf("expected a jump to the last chunk: %v", copier.copied)
	}
}

func TestServeChunksIgnoresOutOfRangeRequests(t *testing.T) {
	copier := &recordingCopier{}
	input := strings.NewReader("9\nq\n")
	var output strings.Builder

	serveError := serveChunks(input, &output, serveFixtures(), rootOptions{}, copier, zap.NewNop())
	if serveError != nil {
		t.Fatalf("serveChunks error: %v", serveError)
	}

	if len(copier.copied) != 2 || copier.copied[1] != "header\n" {
		t.Fatalf("an out-of-range request must stay on the current chunk: %v", copier.copied)
	}
}

func TestServeChunksStdoutPrintsSnippets(t *testing.T) {
	copier := &recordingCopier{}
	input := strings.NewReader("q\n")
	var output strings.Builder

	serveError := serveChunks(input, &output, serveFixtures(), rootOptions{stdout: true, noClipboard: true}, copier, zap.NewNop())
	if serveError != nil {
		t.Fatalf("serveChunks error: %v", serveError)
	}

	if len(copier.copied) != 0 {
		t.Fatalf("no copies expected with the clipboard disabled: %v", copier.copied)
	}
	if !strings.Contains(output.String(), "header\n") {
		t.Fatalf("expected the snippet on stdout: %q", output.String())
	}
}

func TestApplyConfigurationRespectsExplicitFlags(t *testing.T) {
	command := createRootCommand(zap.NewNop())
	if setError := command.Flags().Set(chunkSizeFlagName, "900"); setError != nil {
		t.Fatalf("setting flag: %v", setError)
	}
	options := rootOptions{chunkSize: 900, model: "flag-model"}

	fileChunkSize := 100
	fileStdout := true
	applyConfiguration(command, &options, config.ApplicationConfiguration{
		ChunkSize: &fileChunkSize,
		Model:     "file-model",
		Stdout:    &fileStdout,
	})

	if options.chunkSize != 900 {
		t.Fatalf("an explicit flag must win over the file, got %d", options.chunkSize)
	}
	if options.model != "file-model" {
		t.Fatalf("unset flags must take file values, got %q", options.model)
	}
	if !options.stdout {
		t.Fatal("expected stdout enabled from the file")
	}
}

func TestApplyConfigurationMapsClipboardAndPathToggles(t *testing.T) {
	command := createRootCommand(zap.NewNop())
	options := rootOptions{}

	clipboardEnabled := false
	useGitignore := false
	applyConfiguration(command, &options, config.ApplicationConfiguration{
		Clipboard: &clipboardEnabled,
		Paths:     config.PathConfiguration{UseGitignore: &useGitignore},
	})

	if !options.noClipboard {
		t.Fatal("clipboard: false in the file must disable copying")
	}
	if !options.disableGitignore {
		t.Fatal("paths.use_gitignore: false must disable gitignore handling")
	}
}
