package chunk_test

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DhruvDh/context-gather/internal/chunk"
	"github.com/DhruvDh/context-gather/internal/types"
)

// runeCounter counts one token per rune, keeping engine tests hermetic and
// token arithmetic exactly additive.
type runeCounter struct{}

func (runeCounter) Name() string { return "rune" }

func (runeCounter) CountString(input string) (int, error) { return len([]rune(input)), nil }

var fixedTime = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func buildOptions(limit int) chunk.Options {
	return chunk.Options{
		Limit:   limit,
		Counter: runeCounter{},
		Now:     func() time.Time { return fixedTime },
	}
}

func mustBuild(t *testing.T, files []types.FileContent, options chunk.Options) chunk.Result {
	t.Helper()
	result, buildError := chunk.Build(files, options)
	if buildError != nil {
		t.Fatalf("Build error: %v", buildError)
	}
	return result
}

func sampleFile(path, text string) types.FileContent {
	folder := "."
	if slash := strings.LastIndex(path, "/"); slash >= 0 {
		folder = path[:slash]
	}
	return types.FileContent{Folder: folder, Path: path, Text: text}
}

// stripWrappers removes every boundary marker and container line from a
// snippet, leaving only file body text.
func stripWrappers(snippet string) string {
	var body strings.Builder
	for _, line := range strings.SplitAfter(snippet, "\n") {
		trimmed := strings.TrimSuffix(line, "\n")
		switch {
		case trimmed == "":
			if line == "" {
				continue
			}
			body.WriteString(line)
		case strings.HasPrefix(trimmed, "<context-chunk id="),
			trimmed == "</context-chunk>",
			strings.HasPrefix(trimmed, "<more remaining="),
			trimmed == "<shared-context>",
			trimmed == "</shared-context>",
			strings.HasPrefix(trimmed, "    <file-contents "),
			trimmed == "    </file-contents>":
		default:
			body.WriteString(line)
		}
	}
	return body.String()
}

func TestBuildSmallFilesShareOneChunk(t *testing.T) {
	files := []types.FileContent{
		sampleFile("a.txt", "aaaaaaaaaa"),
		sampleFile("b.txt", "bbbbb"),
	}

	result := mustBuild(t, files, buildOptions(2000))

	if len(result.Chunks) != 2 {
		t.Fatalf("expected header plus one body chunk, got %d chunks", len(result.Chunks))
	}
	for _, meta := range result.Metas {
		if meta.Parts != 1 {
			t.Fatalf("expected one part for %s, got %d", meta.Path, meta.Parts)
		}
	}
	body := result.Chunks[1].Snippet
	if !strings.Contains(body, "path=\"a.txt\"") || !strings.Contains(body, "path=\"b.txt\"") {
		t.Fatalf("expected both files in the body chunk: %q", body)
	}
}

func TestBuildSplitsOversizeFile(t *testing.T) {
	lines := make([]string, 12)
	for lineIndex := range lines {
		lines[lineIndex] = strings.Repeat("x", 30)
	}
	files := []types.FileContent{sampleFile("big.txt", strings.Join(lines, "\n"))}

	limit := 220
	result := mustBuild(t, files, buildOptions(limit))

	if len(result.Chunks) < 3 {
		t.Fatalf("expected the oversize file to span multiple chunks, got %d", len(result.Chunks))
	}
	if result.Metas[0].Parts < 2 {
		t.Fatalf("expected at least two parts, got %d", result.Metas[0].Parts)
	}
	// The header chunk may legitimately exceed the limit; body chunks may not.
	for chunkIndex, renderedChunk := range result.Chunks[1:] {
		if renderedChunk.Tokens > limit {
			t.Fatalf("body chunk %d exceeds the limit: %d > %d", chunkIndex+1, renderedChunk.Tokens, limit)
		}
	}
}

func TestBuildZeroFilesEmitsHeaderOnlyChunk(t *testing.T) {
	result := mustBuild(t, nil, buildOptions(50))

	if len(result.Chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(result.Chunks))
	}
	snippet := result.Chunks[0].Snippet
	if !strings.HasSuffix(snippet, "</shared-context>\n") {
		t.Fatalf("expected the snippet to close the shared context: %q", snippet)
	}
	if strings.Contains(snippet, "<context-chunk id=") {
		t.Fatalf("unexpected context-chunk in header-only output")
	}
	if strings.Contains(snippet, "<file-contents") {
		t.Fatalf("unexpected file-contents in header-only output")
	}
	if !strings.Contains(snippet, "total-files=\"0\"") {
		t.Fatalf("expected an empty manifest, got %q", snippet)
	}
}

func TestBuildDisabledChunking(t *testing.T) {
	files := []types.FileContent{
		sampleFile("a.txt", "alpha"),
		sampleFile("b.txt", "beta"),
	}

	result := mustBuild(t, files, buildOptions(0))

	if len(result.Chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(result.Chunks))
	}
	snippet := result.Chunks[0].Snippet
	if strings.Contains(snippet, "<shared-context") {
		t.Fatalf("expected no header wrapper, got %q", snippet)
	}
	if strings.Count(snippet, "<file-contents ") != 2 {
		t.Fatalf("expected both file blocks, got %q", snippet)
	}
}

func TestBuildReassemblesOriginalContent(t *testing.T) {
	files := []types.FileContent{
		sampleFile("src/one.txt", "first file\nwith two lines"),
		sampleFile("src/two.txt", strings.Repeat("line of text\n", 30)),
		sampleFile("three.txt", "short"),
	}

	result := mustBuild(t, files, buildOptions(260))

	var reassembled strings.Builder
	for _, renderedChunk := range result.Chunks[1:] {
		reassembled.WriteString(stripWrappers(renderedChunk.Snippet))
	}

	var expected strings.Builder
	for _, file := range files {
		expected.WriteString(file.Text)
		expected.WriteString("\n")
	}
	if reassembled.String() != expected.String() {
		t.Fatalf("reassembled content differs\nwant: %q\ngot:  %q", expected.String(), reassembled.String())
	}
}

func TestBuildPartsAccounting(t *testing.T) {
	files := []types.FileContent{
		sampleFile("big.txt", strings.Repeat("abcdefghij\n", 40)),
		sampleFile("small.txt", "tiny"),
	}

	result := mustBuild(t, files, buildOptions(240))

	partPattern := regexp.MustCompile(`path="([^"]+)"[^>]*part="(\d+)/(\d+)"`)
	observedParts := map[string]int{}
	declaredTotals := map[string]map[string]struct{}{}
	for _, renderedChunk := range result.Chunks {
		for _, match := range partPattern.FindAllStringSubmatch(renderedChunk.Snippet, -1) {
			observedParts[match[1]]++
			if declaredTotals[match[1]] == nil {
				declaredTotals[match[1]] = map[string]struct{}{}
			}
			declaredTotals[match[1]][match[3]] = struct{}{}
		}
	}

	for _, meta := range result.Metas {
		observed := observedParts[meta.Path]
		if meta.Parts > 1 {
			if observed != meta.Parts {
				t.Fatalf("file %s declares %d parts but %d were observed", meta.Path, meta.Parts, observed)
			}
			if len(declaredTotals[meta.Path]) != 1 {
				t.Fatalf("file %s declares inconsistent part totals: %v", meta.Path, declaredTotals[meta.Path])
			}
		} else if observed != 0 {
			t.Fatalf("unsplit file %s unexpectedly carries part attributes", meta.Path)
		}
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	files := []types.FileContent{
		sampleFile("a.txt", strings.Repeat("alpha beta\n", 25)),
		sampleFile("b.txt", "gamma"),
	}

	first := mustBuild(t, files, buildOptions(200))
	second := mustBuild(t, files, buildOptions(200))

	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
	for chunkIndex := range first.Chunks {
		if first.Chunks[chunkIndex].Snippet != second.Chunks[chunkIndex].Snippet {
			t.Fatalf("chunk %d differs between runs", chunkIndex)
		}
	}
}

func TestBuildHeaderAdvertisesChunkCount(t *testing.T) {
	files := []types.FileContent{
		sampleFile("a.txt", strings.Repeat("0123456789\n", 40)),
	}

	limit := 240
	result := mustBuild(t, files, buildOptions(limit))

	header := result.Chunks[0].Snippet
	wantTotal := fmt.Sprintf("total-chunks=\"%d\"", len(result.Chunks))
	if !strings.Contains(header, wantTotal) {
		t.Fatalf("expected %s in header: %q", wantTotal, header)
	}
	if !strings.Contains(header, fmt.Sprintf("chunk-size=\"%d\"", limit)) {
		t.Fatalf("expected the configured limit in the header: %q", header)
	}
	if !strings.Contains(header, "generated-at=\"2024-03-15T10:30:00Z\"") {
		t.Fatalf("expected the injected timestamp in the header: %q", header)
	}
	if !strings.Contains(header, fmt.Sprintf("<more remaining=\"%d\"/>", len(result.Chunks)-1)) {
		t.Fatalf("expected a remaining marker after the header: %q", header)
	}
}

func TestBuildGitSections(t *testing.T) {
	files := []types.FileContent{sampleFile("a.txt", "alpha")}
	options := buildOptions(2000)
	options.IncludeGit = true
	options.Git = &types.GitInfo{
		Branch:         "main",
		CommitSubjects: []string{"add packer", "fix header & escaping"},
		ChangedPaths:   []string{"internal/chunk/packer.go"},
	}

	result := mustBuild(t, files, options)

	header := result.Chunks[0].Snippet
	if !strings.Contains(header, "<git-info branch=\"main\">") {
		t.Fatalf("expected git-info section: %q", header)
	}
	if !strings.Contains(header, "<commit>fix header & escaping</commit>") {
		t.Fatalf("expected commit subjects inserted verbatim in raw mode: %q", header)
	}
	if !strings.Contains(header, "<file path=\"internal/chunk/packer.go\"/>") {
		t.Fatalf("expected changed-files section: %q", header)
	}
}

func TestBuildGitUnavailablePlaceholder(t *testing.T) {
	options := buildOptions(2000)
	options.IncludeGit = true

	result := mustBuild(t, []types.FileContent{sampleFile("a.txt", "alpha")}, options)

	if !strings.Contains(result.Chunks[0].Snippet, "<!-- git info unavailable -->") {
		t.Fatalf("expected a placeholder comment when git metadata is missing")
	}
}

func TestBuildMultiStepEmitsManifestOnly(t *testing.T) {
	files := []types.FileContent{
		sampleFile("a.txt", "alpha"),
		sampleFile("b.txt", "beta"),
	}
	options := buildOptions(100)
	options.MultiStep = true

	result := mustBuild(t, files, options)

	if len(result.Chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(result.Chunks))
	}
	snippet := result.Chunks[0].Snippet
	if strings.Contains(snippet, "<file-contents") {
		t.Fatalf("multi-step output must not carry file bodies: %q", snippet)
	}
	if strings.Count(snippet, "<file id=") != 2 {
		t.Fatalf("expected a manifest row per file: %q", snippet)
	}
	if len(result.Metas) != 2 || result.Metas[0].Parts != 1 || result.Metas[1].Parts != 1 {
		t.Fatalf("expected unsplit metadata for every file: %+v", result.Metas)
	}
}

func TestBuildEscapesBodiesWhenConfigured(t *testing.T) {
	files := []types.FileContent{sampleFile("a.txt", "value < 10 && flag > 2")}
	options := buildOptions(0)
	options.EscapeXML = true

	result := mustBuild(t, files, options)

	snippet := result.Chunks[0].Snippet
	if !strings.Contains(snippet, "value &lt; 10 &amp;&amp; flag &gt; 2") {
		t.Fatalf("expected escaped body text: %q", snippet)
	}
}

func TestBuildOversizeLineEmittedWhole(t *testing.T) {
	longLine := strings.Repeat("z", 500)
	files := []types.FileContent{sampleFile("wide.txt", longLine)}

	result := mustBuild(t, files, buildOptions(120))

	var combined strings.Builder
	for _, renderedChunk := range result.Chunks[1:] {
		combined.WriteString(stripWrappers(renderedChunk.Snippet))
	}
	if !strings.Contains(combined.String(), longLine) {
		t.Fatalf("oversize line must be emitted whole, never truncated")
	}
}
