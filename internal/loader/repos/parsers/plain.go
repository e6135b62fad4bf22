package parsers

import (
	"bufio"
	"io"
	"strings"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// ParsePlainList parses a newline-delimited list of domains.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line) and '!' header lines
// - Leading "*." or "." markers are stripped; the apex is what gets recorded
// - Trims surrounding whitespace and removes trailing dots via CanonicalDNSName
// - Skips tokens that are not valid host names (emails, URLs, IPs)
// - De-duplicates by canonical name while preserving first-seen order
func ParsePlainList(r io.Reader, source string, logger log.Logger) ([]domain.Domain, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.Domain, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		s := strings.TrimSpace(stripInlineComment(line))
		name := normalizeDomainName(s)

		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "name": name}, "skip_invalid_fqdn")
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}
		out = append(out, domain.Domain(name))
		seen[name] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, domain.ParseError("scan domain list "+source, err)
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
