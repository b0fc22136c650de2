package policy

import "regexp"

var (
	groqKeyPattern  = regexp.MustCompile(`gsk_[A-Za-z0-9]{8,}`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/\-]+=*`)
	keyParamPattern = regexp.MustCompile(`(?i)((?:api[_-]?key|token)=)[^&\s"']+`)
)

// RedactSecrets masks credentials that can leak through upstream error
// strings (transport errors embed the request URL and sometimes headers).
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := groqKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	next = keyParamPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	return out, changed
}
