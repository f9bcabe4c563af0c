package exchange

import (
	"strings"

	"github.com/raphaelgruber/annobridge/internal/manifest"
)

// Section markers of the generated project description.
const (
	descriptionHeader = "#### Requester Description"
	questionHeader    = "#### Requester Question"
)

// BuildDescription renders the requester description and the English
// requester question as a two-section Markdown document. Blank sections are
// omitted; with no content at all the result is the empty string.
func BuildDescription(description string, question manifest.I18NStrings) string {
	var b strings.Builder

	appendSection := func(header, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		b.WriteString("\n\n")
		b.WriteString(text)
	}

	appendSection(descriptionHeader, description)
	appendSection(questionHeader, question.GetOrDefault("en", ""))

	return b.String()
}
