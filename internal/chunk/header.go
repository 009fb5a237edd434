package chunk

import (
	"fmt"
	"strings"
	"time"

	"github.com/DhruvDh/context-gather/internal/types"
)

const instructionsFormat = "  <instructions>\n" +
	"    You will receive %d chunks (including this header). Study these carefully, your understanding of the shared context is critical to your ability to help the user with their task.\n" +
	"    Respond \"READY\" after the final chunk after you have read and understood the shared context.\n" +
	"  </instructions>\n"

const gitUnavailableComment = "  <!-- git info unavailable -->\n"

// buildHeader renders the manifest chunk: total chunk count, the configured
// limit, a generation timestamp, one file-map row per input file, an
// instructions block, and optional repository metadata. It is rebuilt whenever
// the chunk count changes because it advertises total-chunks.
func (e *engine) buildHeader(totalChunks, limit int, metas []types.FileMeta, git *types.GitInfo, includeGit bool, generatedAt time.Time) string {
	timestamp := generatedAt.UTC().Format(time.RFC3339)

	var fileMap strings.Builder
	for _, meta := range metas {
		fmt.Fprintf(&fileMap, "    <file id=\"%d\" path=\"%s\" tokens=\"%d\" parts=\"%d\"/>\n",
			meta.ID, escapeAttribute(meta.Path), meta.Tokens, meta.Parts)
	}

	var header strings.Builder
	fmt.Fprintf(&header,
		"<shared-context-header version=\"%s\" total-chunks=\"%d\" chunk-size=\"%d\" generated-at=\"%s\">\n",
		types.HeaderVersion, totalChunks, limit, timestamp)
	fmt.Fprintf(&header, "  <file-map total-files=\"%d\">\n", len(metas))
	header.WriteString(fileMap.String())
	header.WriteString("  </file-map>\n")
	fmt.Fprintf(&header, instructionsFormat, totalChunks)
	if includeGit {
		header.WriteString(e.renderGitSections(git))
	}
	header.WriteString("</shared-context-header>\n")
	return header.String()
}

// renderGitSections renders repository metadata supplied by the collector.
// The values arrive opaque and are inserted as provided, escaped per the
// configured escaping mode; attribute values are always kept well-formed.
func (e *engine) renderGitSections(git *types.GitInfo) string {
	if git == nil {
		return gitUnavailableComment
	}

	var sections strings.Builder
	fmt.Fprintf(&sections, "  <git-info branch=\"%s\">\n", escapeAttribute(git.Branch))
	for _, subject := range git.CommitSubjects {
		fmt.Fprintf(&sections, "    <commit>%s</commit>\n", maybeEscapeText(subject, e.escape))
	}
	sections.WriteString("  </git-info>\n")

	if len(git.ChangedPaths) > 0 {
		sections.WriteString("  <changed-files>\n")
		for _, changedPath := range git.ChangedPaths {
			fmt.Fprintf(&sections, "    <file path=\"%s\"/>\n", escapeAttribute(changedPath))
		}
		sections.WriteString("  </changed-files>\n")
	}
	return sections.String()
}
