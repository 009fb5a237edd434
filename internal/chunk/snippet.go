package chunk

import (
	"fmt"
	"strings"
)

// renderSnippet assembles the true on-wire text for one chunk. The header
// chunk opens <shared-context>; every chunk announces how many transfers
// remain, and the last one closes the shared context instead.
func renderSnippet(headerXML string, bodyXMLs []string, index int) string {
	total := len(bodyXMLs) + 1
	remaining := total - index - 1

	if index == 0 {
		var snippet strings.Builder
		snippet.WriteString(headerXML)
		if remaining > 0 {
			fmt.Fprintf(&snippet, "<more remaining=\"%d\"/>\n", remaining)
		} else {
			snippet.WriteString("</shared-context>\n")
		}
		return snippet.String()
	}

	var snippet strings.Builder
	fmt.Fprintf(&snippet, "<context-chunk id=\"%d/%d\">\n", index, total)
	snippet.WriteString(bodyXMLs[index-1])
	snippet.WriteString("</context-chunk>\n")
	if remaining > 0 {
		fmt.Fprintf(&snippet, "<more remaining=\"%d\"/>\n", remaining)
	} else {
		snippet.WriteString("</shared-context>\n")
	}
	return snippet.String()
}
