package botdefense

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

var disposableDomains = map[string]struct{}{
	"10minutemail.com":  {},
	"dispostable.com":   {},
	"fakeinbox.com":     {},
	"getnada.com":       {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"maildrop.cc":       {},
	"sharklasers.com":   {},
	"temp-mail.org":     {},
	"tempmail.com":      {},
	"throwawaymail.com": {},
	"trashmail.com":     {},
	"yopmail.com":       {},
}

const (
	maxLinks        = 2
	minCapsLetters  = 20
	capsRatio       = 0.7
	repeatedRunSize = 10
)

func checkHeuristics(sub Submission) []Signal {
	var out []Signal
	if sub.Interactions <= 0 {
		out = append(out, Suspicious(CheckHeuristics, 0.3, "no interaction events"))
	}
	if n := countLinks(sub.Text); n > maxLinks {
		out = append(out, Suspicious(CheckHeuristics, 0.4, fmt.Sprintf("%d links in message", n)))
	}
	if isDisposable(sub.Email) {
		out = append(out, Suspicious(CheckHeuristics, 0.5, "disposable email domain"))
	}
	if mostlyUpper(sub.Text) {
		out = append(out, Suspicious(CheckHeuristics, 0.2, "message mostly upper-case"))
	}
	if hasRepeatedRun(sub.Text, repeatedRunSize) {
		out = append(out, Suspicious(CheckHeuristics, 0.2, "repeated characters"))
	}
	return out
}

func countLinks(text string) int {
	lower := strings.ToLower(text)
	n := strings.Count(lower, "http://") + strings.Count(lower, "https://")
	for _, field := range strings.Fields(lower) {
		if strings.HasPrefix(field, "www.") {
			n++
		}
	}
	return n
}

// isDisposable matches the address's domain, or any parent domain, against
// known throwaway providers.
func isDisposable(address string) bool {
	_, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok || domain == "" {
		return false
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return false
	}
	ascii = strings.ToLower(strings.TrimSuffix(ascii, "."))
	for {
		if _, ok := disposableDomains[ascii]; ok {
			return true
		}
		_, parent, found := strings.Cut(ascii, ".")
		if !found || !strings.Contains(parent, ".") {
			return false
		}
		ascii = parent
	}
}

func mostlyUpper(text string) bool {
	var letters, upper int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= minCapsLetters && float64(upper)/float64(letters) > capsRatio
}

func hasRepeatedRun(text string, size int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
		}
		if run >= size {
			return true
		}
		prev = r
	}
	return false
}

func checkHoneypot(fields map[string]string, names []string) Signal {
	for _, name := range names {
		if strings.TrimSpace(fields[name]) != "" {
			return Block(CheckHoneypot, "honeypot field "+name+" filled")
		}
	}
	return Pass(CheckHoneypot)
}
