package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// maxJSONBody caps decoded metadata and query responses.
const maxJSONBody = 256 << 20

// DecodeJSON decodes a single JSON value from r into v.
func DecodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(r, maxJSONBody)).Decode(v); err != nil {
		return eris.Wrap(err, "json: decode")
	}
	return nil
}
