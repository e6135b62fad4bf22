package parsers

import (
	"net"
	"strings"
	"unicode"

	"github.com/haukened/blocklist-loader/internal/loader/common/utils"
)

// ignoredHostnames are loopback and broadcast aliases that hosts files carry
// alongside real entries. They never describe blocked content.
var ignoredHostnames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"ip6-localnet":          {},
	"ip6-mcastprefix":       {},
	"ip6-allnodes":          {},
	"ip6-allrouters":        {},
	"ip6-allhosts":          {},
}

// isValidFQDN checks whether the provided string is a valid Fully Qualified Domain Name (FQDN).
// It enforces the following rules:
//   - The total length must not exceed 255 characters.
//   - The name must contain at least two labels (separated by dots).
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter, number, or underscore.
//   - The name must not be an IP address.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
		if strings.ContainsFunc(label, isForbiddenRune) {
			return false
		}
	}
	first := []rune(labels[0])[0]
	if !isAlphaNumeric(first) && first != '_' {
		return false
	}
	return net.ParseIP(name) == nil
}

// normalizeDomainName trims whitespace, removes any leading "*." or "." marker
// and returns the canonical DNS name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a raw line is blank or a whole-line comment.
// Both '#' and '!' (adblock-style headers) introduce comments.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// isAlphaNumeric reports whether the given rune is a letter or digit.
func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isForbiddenRune rejects characters that cannot appear in a host name label.
func isForbiddenRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("*/\\@:?=&%$!,;\"'<>()[]{}|^`~+", r)
}
