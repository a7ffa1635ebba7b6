package main

import (
	"strings"
)

const (
	// RFC 2812 limit.
	maxChannelLength = 50

	maxRealNameLength = 64
)

// Nicks and channels compare case insensitively. We key maps by the lower
// cased form.
func canonicalizeNick(n string) string    { return strings.ToLower(n) }
func canonicalizeChannel(c string) string { return strings.ToLower(c) }

func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }

// allRunes is true if s is non-empty and every rune satisfies ok.
func allRunes(s string, ok func(r rune) bool) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !ok(r) }) == -1
}

// Nicks are letters, digits, and _, not starting with a digit. Stricter than
// the RFC.
func isValidNick(maxLen int, n string) bool {
	if len(n) > maxLen || (n != "" && isDigit(rune(n[0]))) {
		return false
	}
	return allRunes(n, func(r rune) bool {
		return isLetter(r) || isDigit(r) || r == '_'
	})
}

// Idents are letters and digits.
func isValidUser(maxLen int, u string) bool {
	if len(u) > maxLen {
		return false
	}
	return allRunes(u, func(r rune) bool { return isLetter(r) || isDigit(r) })
}

func isValidRealName(s string) bool {
	return len(s) <= maxRealNameLength
}

// Channels are # followed by lower case letters, digits, - and _. Check the
// canonical form.
func isValidChannel(c string) bool {
	if len(c) > maxChannelLength || !strings.HasPrefix(c, "#") {
		return false
	}
	return allRunes(c[1:], func(r rune) bool {
		return (r >= 'a' && r <= 'z') || isDigit(r) || r == '-' || r == '_'
	})
}

// Numeric replies get the target's nick as their first parameter.
func isNumericCommand(command string) bool {
	return allRunes(command, isDigit)
}

// commaChannelsToChannelNames splits a JOIN style channel list into canonical
// names. Blank entries are dropped. Validity is left to the caller.
func commaChannelsToChannelNames(s string) []string {
	var names []string
	for _, name := range splitList(s) {
		names = append(names, canonicalizeChannel(name))
	}
	return names
}
