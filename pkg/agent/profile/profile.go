package profile

import (
	"embed"
	"fmt"
	"strings"

	"concierge/pkg/routing"
)

const baseTemplateName = "assistant"

//go:embed templates/*.md
var templatesFS embed.FS

// Params selects the profile variant for one session.
type Params struct {
	Trust    routing.TrustLevel
	UserName string
}

// Build assembles the system profile for a session: the base assistant
// template plus guidance scaled to the originator's trust level.
func Build(params Params) (string, error) {
	content, err := templatesFS.ReadFile(templatePath(baseTemplateName))
	if err != nil {
		return "", fmt.Errorf("load %s profile template: %w", baseTemplateName, err)
	}

	base := strings.TrimSpace(string(content))
	if base == "" {
		return "", fmt.Errorf("profile template %q is empty", baseTemplateName)
	}

	sections := []string{base, trustGuidance(params.Trust)}
	if name := strings.TrimSpace(params.UserName); name != "" {
		sections = append(sections, fmt.Sprintf("You are currently speaking with %s.", name))
	}

	return strings.Join(sections, "\n\n"), nil
}

func trustGuidance(trust routing.TrustLevel) string {
	switch trust {
	case routing.TrustFull:
		return "Trust: full. This is your principal. Act on their behalf without hedging, including reading and writing workspace files."
	case routing.TrustInner:
		return "Trust: inner circle. Share schedules and plans freely, but do not reveal credentials, finances, or anything the principal marked private."
	case routing.TrustFamiliar:
		return "Trust: familiar. Be helpful with general requests, but do not disclose the principal's personal details or workspace contents."
	default:
		return "Trust: public. You are talking to a stranger. Be polite, reveal nothing about the principal, and decline requests that need their data."
	}
}

func templatePath(name string) string {
	return "templates/" + strings.TrimSpace(name) + ".md"
}
