package parsers

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// ParseFunc turns list content into canonical domains in first-seen order.
type ParseFunc func(r io.Reader, source string, logger log.Logger) ([]domain.Domain, error)

// ForFormat selects the parser for a catalog format tag.
func ForFormat(format domain.Format) (ParseFunc, error) {
	switch format {
	case domain.FormatHosts:
		return ParseHostsFile, nil
	case domain.FormatDomain:
		return ParsePlainList, nil
	default:
		return nil, domain.ConfigError("unknown list format: %q", string(format))
	}
}

// Parse runs parse over r and returns the canonical set together with the
// sha256 of every byte read from r and of the sorted domain set.
func Parse(r io.Reader, parse ParseFunc, source string, logger log.Logger) (domain.ParsedList, error) {
	raw := sha256.New()
	tee := io.TeeReader(r, raw)

	domains, err := parse(tee, source, logger)
	if err != nil {
		return domain.ParsedList{}, err
	}
	// The scanner may stop before EOF; the raw hash covers the whole body.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return domain.ParsedList{}, domain.ParseError("drain "+source, err)
	}

	set := domain.NewDomainSet(domains...)
	return domain.NewParsedList(set, hex.EncodeToString(raw.Sum(nil))), nil
}
