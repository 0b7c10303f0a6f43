package profile

import (
	"fmt"
	"strings"
)

type Persona string

const (
	PersonaStudent              Persona = "student"
	PersonaEducator             Persona = "educator"
	PersonaSelfLearner          Persona = "self_learner"
	PersonaIndustryProfessional Persona = "industry_professional"
)

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

type LearningPace string

const (
	PaceAccelerated LearningPace = "accelerated"
	PaceStandard    LearningPace = "standard"
	PaceExtended    LearningPace = "extended"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageUrdu    Language = "ur"
)

// Profile is the learner's preference state. An empty Persona or SkillLevel
// means unset; LearningPace and Language are always set.
type Profile struct {
	Persona         Persona      `json:"persona"`
	SkillLevel      SkillLevel   `json:"skillLevel"`
	LearningPace    LearningPace `json:"learningPace"`
	Language        Language     `json:"language"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// Defaults returns the first-load profile.
func Defaults() Profile {
	return Profile{
		LearningPace: PaceStandard,
		Language:     LanguageEnglish,
	}
}

// Field names one persisted preference.
type Field string

const (
	FieldPersona      Field = "persona"
	FieldSkillLevel   Field = "skillLevel"
	FieldLearningPace Field = "learningPace"
	FieldLanguage     Field = "language"
)

// Fields lists the persisted preference fields in display order.
func Fields() []Field {
	return []Field{FieldPersona, FieldSkillLevel, FieldLearningPace, FieldLanguage}
}

// ParseField accepts the camelCase name or a snake/kebab-case alias.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s))) {
	case "persona":
		return FieldPersona, nil
	case "skilllevel", "skill", "level":
		return FieldSkillLevel, nil
	case "learningpace", "pace":
		return FieldLearningPace, nil
	case "language", "lang", "languagepreference":
		return FieldLanguage, nil
	}
	return "", fmt.Errorf("%w: unknown field %q", ErrInvalidValue, s)
}

// Required reports whether the field can never be unset.
func (f Field) Required() bool {
	return f == FieldLearningPace || f == FieldLanguage
}

// Title is the human label for the field.
func (f Field) Title() string {
	switch f {
	case FieldPersona:
		return "I am a"
	case FieldSkillLevel:
		return "Skill level"
	case FieldLearningPace:
		return "Learning pace"
	case FieldLanguage:
		return "Language"
	}
	return string(f)
}

var options = map[Field][]string{
	FieldPersona:      {string(PersonaStudent), string(PersonaEducator), string(PersonaSelfLearner), string(PersonaIndustryProfessional)},
	FieldSkillLevel:   {string(SkillBeginner), string(SkillIntermediate), string(SkillAdvanced)},
	FieldLearningPace: {string(PaceAccelerated), string(PaceStandard), string(PaceExtended)},
	FieldLanguage:     {string(LanguageEnglish), string(LanguageUrdu)},
}

// Options returns the allowed values for f in display order. The unset value
// is not included.
func Options(f Field) []string {
	return append([]string(nil), options[f]...)
}

var labels = map[string]string{
	string(PersonaStudent):              "Student",
	string(PersonaEducator):             "Educator",
	string(PersonaSelfLearner):          "Self-Learner",
	string(PersonaIndustryProfessional): "Industry Professional",
	string(SkillBeginner):               "Beginner",
	string(SkillIntermediate):           "Intermediate",
	string(SkillAdvanced):               "Advanced",
	string(PaceAccelerated):             "Accelerated",
	string(PaceStandard):                "Standard",
	string(PaceExtended):                "Extended",
	string(LanguageEnglish):             "English",
	string(LanguageUrdu):                "اردو (Urdu)",
}

// Label returns the display label for a field value. Unset renders as "Not set".
func Label(v string) string {
	if v == "" {
		return "Not set"
	}
	if l, ok := labels[v]; ok {
		return l
	}
	return v
}

// Value returns the current value of f as a string.
func (p Profile) Value(f Field) string {
	switch f {
	case FieldPersona:
		return string(p.Persona)
	case FieldSkillLevel:
		return string(p.SkillLevel)
	case FieldLearningPace:
		return string(p.LearningPace)
	case FieldLanguage:
		return string(p.Language)
	}
	return ""
}

func (p *Profile) set(f Field, v string) {
	switch f {
	case FieldPersona:
		p.Persona = Persona(v)
	case FieldSkillLevel:
		p.SkillLevel = SkillLevel(v)
	case FieldLearningPace:
		p.LearningPace = LearningPace(v)
	case FieldLanguage:
		p.Language = Language(v)
	}
}
