package collector

import "github.com/anatolykoptev/go_transcripts/internal/extract"

// searchKeywords returns the keyword set used for discovery, organized by the
// same category groups the scorer uses. Test mode uses a reduced subset so a
// smoke run stays inside API quota.
func searchKeywords(testMode bool) []string {
	if testMode {
		return []string{"politics", "election", "trump"}
	}
	var keywords []string
	for _, cat := range extract.Categories {
		keywords = append(keywords, cat.Keywords...)
	}
	return keywords
}
