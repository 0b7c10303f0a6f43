package profile

import (
	"fmt"
	"strings"
)

func summarize(p Profile) string {
	var parts []string

	if p.Persona != "" {
		parts = append(parts, fmt.Sprintf("Learner: %s.", Label(string(p.Persona))))
	}
	if p.SkillLevel != "" {
		parts = append(parts, fmt.Sprintf("Level: %s.", Label(string(p.SkillLevel))))
	}
	if len(parts) == 0 {
		parts = append(parts, "Preferences: not yet configured.")
	}

	parts = append(parts,
		fmt.Sprintf("Pace: %s.", Label(string(p.LearningPace))),
		fmt.Sprintf("Language: %s.", Label(string(p.Language))),
	)

	if p.IsAuthenticated {
		parts = append(parts, "Signed in.")
	} else {
		parts = append(parts, "Signed out.")
	}
	return strings.Join(parts, " ")
}
