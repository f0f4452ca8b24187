package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Header carries the request id between gateway, services and logs.
const Header = "X-Request-Id"

func New() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Normalize trims an inbound id and rejects values that would pollute logs.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 128 {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}
