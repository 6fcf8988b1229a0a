package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// FilterText strips control characters and colour escapes ('\f' followed by
// one code character) from s and truncates the result to maxLen bytes.
// When allowSpace is false, spaces are dropped as well.
func FilterText(s string, maxLen int, allowSpace bool) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\f' {
			i++
			continue
		}
		if c < 0x20 || c == 0x7F {
			continue
		}
		if c == ' ' && !allowSpace {
			continue
		}
		if maxLen > 0 && sb.Len() >= maxLen {
			break
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// FilterName filters a player name and substitutes a default for empty names.
func FilterName(s string) string {
	name := FilterText(s, MaxNameLen, true)
	if name == "" {
		return "unarmed"
	}
	return name
}

// PasswordHash derives the credential a client sends instead of a password.
// The hash binds the password to the player name and the per-connection salt.
func PasswordHash(name, password string, salt int) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s %d %s", name, salt, password)))
	return hex.EncodeToString(sum[:24])
}
