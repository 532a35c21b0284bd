package accesstoken

import (
	"bytes"
	"fmt"
	"strconv"
)

// User id carried in the "sub" claim
// Written as a decimal string, read from either a JSON number or a numeric string
type subject int64

func (s subject) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(s), 10))), nil
}

func (s *subject) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}

	raw := string(data)
	if len(data) > 1 && data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("subject is not a valid string: %w", err)
		}
		raw = unquoted
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("subject is not a user id: %w", err)
	}

	*s = subject(id)
	return nil
}
