package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Format identifies how a blocklist's published content is laid out.
type Format string

const (
	// FormatHosts is /etc/hosts style: an address followed by host names.
	FormatHosts Format = "hosts"
	// FormatDomain is one domain per line.
	FormatDomain Format = "domain"
)

// ParseFormat converts a catalog format tag into a Format.
// Unknown tags are configuration errors.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHosts:
		return FormatHosts, nil
	case FormatDomain:
		return FormatDomain, nil
	default:
		return "", ConfigError("unknown list format: %q", s)
	}
}

// Blocklist is a catalog entry. Owned by the catalog service; read-only here.
type Blocklist struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Format      Format    `json:"format"`
	DownloadURL string    `json:"downloadUrl"`
}

// LogFields returns the fields used to identify the list in log lines.
func (b Blocklist) LogFields() map[string]any {
	return map[string]any{
		"blocklist_id": b.ID.String(),
		"blocklist":    b.Name,
	}
}
