package model

import (
	"strconv"
	"strings"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// ValidateResponse rejects any snippet exceeding SnippetLimit or containing
// a NUL or ESC byte, per the response validator contract in spec §4.K.
func ValidateResponse(resp Response) error {
	for i, r := range resp.Results {
		if len(r.Snippet) > SnippetLimit {
			return errorkind.New(errorkind.ResponseSerialization, "validate_response",
				"snippet exceeds limit at result "+strconv.Itoa(i))
		}
		if strings.IndexByte(r.Snippet, 0x00) >= 0 || strings.IndexByte(r.Snippet, 0x1b) >= 0 {
			return errorkind.New(errorkind.ResponseSerialization, "validate_response",
				"snippet contains forbidden control byte at result "+strconv.Itoa(i))
		}
	}
	return nil
}
