package capture

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies an error occurrence for duplicate detection.
// Context maps are encoded with sorted keys, so equal contexts hash equal
// regardless of construction order.
func Fingerprint(name, message string, context map[string]interface{}) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})

	if len(context) > 0 {
		data, err := json.Marshal(context)
		if err != nil {
			// Unencodable values still need a stable key.
			data = []byte(fmt.Sprintf("%v", context))
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
