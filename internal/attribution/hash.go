package attribution

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/merchantpulse/attribution/internal/domain"
)

// stableIDLength is the number of hex characters kept from the digest.
const stableIDLength = 16

// StableID returns a short content fingerprint of the normalized
// configuration. Two semantically identical configurations hash
// identically regardless of construction order: normalization sorts
// sources before serialization, and JSON object keys marshal in sorted
// order. Caching and diagnostics layers use this to detect rule-set
// changes without re-running the matcher.
func StableID(cfg *domain.Config) string {
	canonical, err := MarshalConfig(cfg)
	if err != nil {
		// A Config is plain data; marshaling cannot fail in practice.
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:stableIDLength]
}
