package natskv

import (
	"regexp"
	"testing"
)

// validKey mirrors the JetStream KV key alphabet.
var validKey = regexp.MustCompile(`^[-/_=\.a-zA-Z0-9]+$`)

func TestEncodeKey(t *testing.T) {
	keys := []string{
		"status:prod/api",
		"idem:POST /api/v1/deploy:abc 123",
		"status:default/web",
	}
	seen := map[string]string{}
	for _, k := range keys {
		enc := encodeKey(k)
		if !validKey.MatchString(enc) {
			t.Errorf("encodeKey(%q) = %q is not a valid KV key", k, enc)
		}
		if prev, dup := seen[enc]; dup {
			t.Errorf("encodeKey collision: %q and %q", prev, k)
		}
		seen[enc] = k
	}
}
