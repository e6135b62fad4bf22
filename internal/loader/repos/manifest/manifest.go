package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// entry mirrors one element of the manifest's "versions" array.
type entry struct {
	URL         string `json:"url" validate:"required,url"`
	CommitEpoch *int64 `json:"commitEpoch" validate:"required,gte=0"`
}

// document is the manifest file. Unknown top-level fields are ignored.
type document struct {
	Versions []entry `json:"versions" validate:"required,min=1,dive"`
}

// readFile is swapped in tests.
var readFile = os.ReadFile

// Load reads a historical import manifest from path and returns its entries in
// file order. Ordering for replay is the driver's job.
//
// Every failure (missing file, malformed JSON, invalid entry) is a
// configuration error.
func Load(path string) ([]domain.HistoricalList, error) {
	raw, err := readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ConfigError("manifest %s does not exist", path)
		}
		return nil, domain.ConfigError("read manifest %s: %v", path, err)
	}
	return Decode(raw, path)
}

// Decode parses manifest bytes. source names the manifest in errors.
func Decode(raw []byte, source string) ([]domain.HistoricalList, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.ConfigError("malformed manifest %s: %v", source, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&doc); err != nil {
		return nil, domain.ConfigError("invalid manifest %s: %v", source, err)
	}

	out := make([]domain.HistoricalList, len(doc.Versions))
	for i, e := range doc.Versions {
		out[i] = domain.HistoricalList{URL: e.URL, CommitEpoch: *e.CommitEpoch}
	}
	return out, nil
}
