package conversation

import (
	"fmt"
	"strings"

	"github.com/ent0n29/ollavoice/internal/locale"
)

// BuildPrompt renders the history plus the new user prompt as a single
// completion prompt, every line tagged with speaker and language.
func BuildPrompt(turns []Turn, prompt string, loc locale.Locale) string {
	var b strings.Builder
	for _, t := range turns {
		label := loc.UserLabel
		if t.Role == RoleAssistant {
			label = loc.AssistantLabel
		}
		fmt.Fprintf(&b, "%s [%s]: %s\n", label, loc.Lang, t.Text)
	}
	fmt.Fprintf(&b, "%s [%s]: %s\n%s [%s]:", loc.UserLabel, loc.Lang, strings.TrimSpace(prompt), loc.AssistantLabel, loc.Lang)
	return b.String()
}
