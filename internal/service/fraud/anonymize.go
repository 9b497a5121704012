package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// hashLen is the length of the anonymized form: a fixed-size prefix of the
// hex digest, long enough to correlate, too short to reverse.
const hashLen = 16

// evidenceSensitiveFields are hashed wherever they appear in alert
// evidence, however deeply nested.
var evidenceSensitiveFields = map[string]struct{}{
	"ip_address":         {},
	"device_fingerprint": {},
	"user_id":            {},
	"device_id":          {},
}

// trainingSensitiveFields are hashed-or-dropped in training records.
var trainingSensitiveFields = map[string]struct{}{
	"user_id":            {},
	"email":              {},
	"phone":              {},
	"name":               {},
	"ip_address":         {},
	"device_id":          {},
	"device_fingerprint": {},
	"address":            {},
}

// hashForGDPR irreversibly hashes a personally identifying value.
func hashForGDPR(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// anonymizeEvidence deep-copies evidence, hashing every sensitive field at
// any nesting depth. Nothing identifying leaves the detector in an alert.
func anonymizeEvidence(details map[string]any) map[string]any {
	anonymized := make(map[string]any, len(details))

	for key, value := range details {
		if nested, ok := value.(map[string]any); ok {
			anonymized[key] = anonymizeEvidence(nested)
			continue
		}
		if _, sensitive := evidenceSensitiveFields[key]; sensitive {
			anonymized[key] = hashForGDPR(fmt.Sprintf("%v", value))
			continue
		}
		anonymized[key] = value
	}

	return anonymized
}

// anonymizeForTraining rewrites a training record: sensitive fields become
// "<field>_hash" entries, empty ones are dropped entirely.
func anonymizeForTraining(sample map[string]any) map[string]any {
	anonymized := make(map[string]any, len(sample))

	for key, value := range sample {
		if _, sensitive := trainingSensitiveFields[key]; sensitive {
			if value == nil || value == "" {
				continue
			}
			anonymized[key+"_hash"] = hashForGDPR(fmt.Sprintf("%v", value))
			continue
		}
		anonymized[key] = value
	}

	return anonymized
}
