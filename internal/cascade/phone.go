package cascade

import "strings"

// NormalizePhone strips everything except digits, keeping a leading +
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

var emergencyNumbers = map[string]string{
	"IN": "112",
	"US": "911",
	"CA": "911",
	"GB": "999",
	"UK": "999",
	"EU": "112",
	"AU": "000",
}

// EmergencyNumber returns the regional emergency number. A non-empty override
// wins; unknown regions use 112.
func EmergencyNumber(countryCode, override string) string {
	if override != "" {
		return override
	}
	if n, ok := emergencyNumbers[strings.ToUpper(strings.TrimSpace(countryCode))]; ok {
		return n
	}
	return "112"
}
