package memory

import (
	"regexp"
	"strings"
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is\s+([\p{L}\p{N}_-]{1,20})`),
		regexp.MustCompile(`(?i)\bcall me\s+([\p{L}\p{N}_-]{1,20})`),
		regexp.MustCompile(`\b[Ii]'?m\s+(\p{Lu}[\p{L}\p{N}_-]{0,19})\b`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:i live in)\s+(\p{L}[\p{L}-]*(?:\s+\p{Lu}[\p{L}-]*){0,2})`),
		regexp.MustCompile(`\b(?i:i'?m from)\s+(\p{L}[\p{L}-]*(?:\s+\p{Lu}[\p{L}-]*){0,2})`),
	}
	lateSleepHints = []string{"sleep late", "stay up late", "go to bed late", "11pm", "11 pm", "midnight"}
)

// ExtractProfile pulls profile facts out of raw user input. The returned
// patch holds only the keys found this time (name, location, sleep).
func ExtractProfile(input string) map[string]string {
	patch := map[string]string{}
	text := strings.TrimSpace(input)
	if text == "" {
		return patch
	}

	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			patch["location"] = strings.TrimSpace(m[1])
			break
		}
	}

	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		// "I'm from X" is a location, not a name
		if strings.EqualFold(m[1], "from") {
			continue
		}
		patch["name"] = m[1]
		break
	}

	lower := strings.ToLower(text)
	for _, hint := range lateSleepHints {
		if strings.Contains(lower, hint) {
			patch["sleep"] = "late"
			break
		}
	}

	return patch
}
