// Package xmlutil escapes user text before it is embedded in XML-delimited
// model prompts.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML so node text cannot
// close or open prompt sections.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// Tag wraps the escaped content in <name>...</name>.
func Tag(name, content string) string {
	return "<" + name + ">" + Escape(content) + "</" + name + ">"
}
