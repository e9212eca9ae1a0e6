package extractor

import (
	"regexp"
	"strings"
)

// phonePatterns match Austrian phone number shapes, most specific first.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+43\s*\d{1,4}[\s\-/]?\d{3,}[\s\-/]?\d{2,}`),
	regexp.MustCompile(`0\d{3,4}[\s\-/]?\d{3,}[\s\-/]?\d{2,}`),
	regexp.MustCompile(`\b06\d{2}[\s\-/]?\d{3}[\s\-/]?\d{2,4}\b`),
	regexp.MustCompile(`\b0\d{3}[\s\-/]?\d{6,}\b`),
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "/", "")

// ExtractPhone scans free text for an Austrian phone number and normalizes
// it: separators are stripped and a single leading 0 becomes +43. Numbers
// already in 00-international form are returned as matched; 00 is the
// international dialing prefix and must not be converted a second time.
func ExtractPhone(text string) string {
	for _, re := range phonePatterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		phone := phoneSeparators.Replace(m)
		if strings.HasPrefix(phone, "0") && !strings.HasPrefix(phone, "00") {
			phone = "+43" + phone[1:]
		}
		return phone
	}
	return ""
}
