// Package extract holds the pure text heuristics used during collection:
// episode numbers, guest names, and political-relevance scoring.
// No IO — everything here is deterministic string matching, so alternate
// strategies can be swapped in as plain function values.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Episode number patterns, tried in order. First numeric match wins.
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`#(\d+)`),
	regexp.MustCompile(`(?i)episode\s+(\d+)`),
	regexp.MustCompile(`(?i)jre\s+(\d+)`),
}

// EpisodeNumber extracts an episode number from a video title.
// Returns (0, false) when no pattern matches.
func EpisodeNumber(title string) (int, bool) {
	for _, re := range episodePatterns {
		m := re.FindStringSubmatch(title)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// Guest name patterns, tried in order. The captured group runs up to the
// next '#' or end of string.
var guestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)with\s+([^#]+)`),
	regexp.MustCompile(`(?i)joe rogan experience\s+#\d+\s*-\s*([^#]+)`),
}

// GuestName extracts a guest name from a video title.
// Heuristic only — no guarantee the match is actually a person.
func GuestName(title string) (string, bool) {
	for _, re := range guestPatterns {
		m := re.FindStringSubmatch(title)
		if len(m) < 2 {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// Category names for political keyword groups.
const (
	CategoryCorePolitics      = "core_politics"
	CategoryPartiesIdeologies = "parties_ideologies"
	CategoryPoliticalFigures  = "political_figures"
	CategoryPolicyIssues      = "policy_issues"
	CategoryCulturalIssues    = "cultural_issues"
)

// Category is one fixed keyword group used for relevance scoring.
type Category struct {
	Name     string
	Keywords []string
}

// Categories is the fixed set of five keyword groups. Order only affects
// the insertion order of the returned category names, never the score.
var Categories = []Category{
	{CategoryCorePolitics, []string{
		"politics", "political", "election", "democracy",
	}},
	{CategoryPartiesIdeologies, []string{
		"democrat", "republican", "liberal", "conservative",
		"libertarian", "progressive", "left wing", "right wing",
	}},
	{CategoryPoliticalFigures, []string{
		"trump", "biden", "obama", "clinton",
	}},
	{CategoryPolicyIssues, []string{
		"policy", "government", "congress", "senate",
		"immigration", "healthcare", "climate change", "foreign policy",
	}},
	{CategoryCulturalIssues, []string{
		"censorship", "free speech",
	}},
}

// Score computes a political-relevance score in [0,1] for a video plus the
// set of matched category names. Each category with at least one keyword
// present contributes matches*0.2; the total is clamped at 1.0.
func Score(title, description string) (float64, []string) {
	text := strings.ToLower(title + " " + description)

	var score float64
	var matched []string
	for _, cat := range Categories {
		matches := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches > 0 {
			score += float64(matches) * 0.2
			matched = append(matched, cat.Name)
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, matched
}
