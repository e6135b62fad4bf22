package parsers

import (
	"bufio"
	"io"
	"strings"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/common/utils"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// ParseHostsFile parses /etc/hosts-style content and returns the host names it blocks.
//
// Rules:
// - Ignore the IP field; extract one or more hostnames following it
// - Skip comments (whole-line or inline after '#') and blank lines
// - Skip invalid tokens (any '*', or names starting with '.')
// - Skip loopback/broadcast aliases such as localhost
// - Normalize via CanonicalDNSName; validate with isValidFQDN
// - De-duplicate by canonical name, preserving first-seen order
func ParseHostsFile(r io.Reader, source string, logger log.Logger) ([]domain.Domain, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.Domain, 0, 256)

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		line = stripInlineComment(line)

		fields := strings.Fields(line)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}

		// fields[0] is the address
		for _, raw := range fields[1:] {
			if raw == "" || strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}

			name := utils.CanonicalDNSName(raw)

			if _, ok := ignoredHostnames[name]; ok {
				continue
			}

			if !isValidFQDN(name) {
				logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_invalid_fqdn")
				continue
			}

			if _, ok := seen[name]; ok {
				continue
			}

			out = append(out, domain.Domain(name))
			seen[name] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, domain.ParseError("scan hosts list "+source, err)
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}
