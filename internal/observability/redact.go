package observability

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// Redact masks e-mail addresses, card and phone numbers in user speech
// before it reaches the logs.
func Redact(input string) string {
	out := emailPattern.ReplaceAllString(input, "[email]")
	// Cards first so long digit runs are not taken for phone numbers.
	out = cardPattern.ReplaceAllString(out, "[card]")
	return phonePattern.ReplaceAllString(out, "[phone]")
}
