// Package chunk implements the token-bounded packing and rendering engine.
// It turns an ordered list of gathered files into size-bounded on-wire
// snippets, each wrapped in delimited containers and led by a manifest chunk.
package chunk

import (
	"fmt"
	"path"
	"strings"
)

var attributeEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// escapeAttribute makes a value safe inside a double-quoted attribute. It is
// applied unconditionally: even with body escaping disabled the container must
// stay well-formed.
func escapeAttribute(value string) string {
	if !strings.ContainsAny(value, "&<>\"") {
		return value
	}
	return attributeEscaper.Replace(value)
}

// maybeEscapeText escapes markup-significant characters in body text when
// escaping is enabled, otherwise returns the text untouched.
func maybeEscapeText(text string, escape bool) string {
	if !escape {
		return text
	}
	return textEscaper.Replace(text)
}

// splitPathAttributes derives the name and folder attributes for a file path.
// An empty folder displays as ".".
func splitPathAttributes(filePath string) (name string, folder string) {
	name = path.Base(filePath)
	folder = path.Dir(filePath)
	if folder == "" {
		folder = "."
	}
	return name, folder
}

// wrapFile renders a whole file's body inside its attributed container.
// The body receives a trailing newline so the closing tag sits on its own line.
func wrapFile(filePath, body string) string {
	name, folder := splitPathAttributes(filePath)
	return fmt.Sprintf(
		"    <file-contents path=\"%s\" name=\"%s\" folder=\"%s\">\n%s\n    </file-contents>\n",
		escapeAttribute(filePath),
		escapeAttribute(name),
		escapeAttribute(folder),
		body,
	)
}

// wrapPart renders one contiguous line-range of a file, carrying its 1-based
// part index and declared total. Part bodies already end with a newline.
func wrapPart(filePath string, index, total int, body string) string {
	name, folder := splitPathAttributes(filePath)
	return fmt.Sprintf(
		"    <file-contents path=\"%s\" name=\"%s\" folder=\"%s\" part=\"%d/%d\">\n%s    </file-contents>\n",
		escapeAttribute(filePath),
		escapeAttribute(name),
		escapeAttribute(folder),
		index,
		total,
		body,
	)
}
