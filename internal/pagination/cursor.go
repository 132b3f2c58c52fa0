package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidCursor indicates a continuation token the server did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the keyset position a paginated read resumes from. Clients see
// only the opaque encoded form.
type Cursor struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

// Encode serializes a cursor into an opaque token.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque token. An empty token yields a zero cursor,
// meaning "from the start".
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == "" && c.At.IsZero() {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// Zero reports whether the cursor points at the start of the result set.
func (c Cursor) Zero() bool {
	return c.ID == "" && c.At.IsZero()
}
