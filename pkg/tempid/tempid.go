// Package tempid generates deterministic temporary company identifiers for
// names that cannot be resolved to a canonical id.
package tempid

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"

	"github.com/wisbric/companyid/pkg/normalize"
)

// Prefix distinguishes temporary ids from numeric canonical ids. Downstream
// consumers key off the leading "IN" characters.
const Prefix = "IN_"

// emptyInput is hashed in place of a name that normalizes to "".
const emptyInput = "__empty__"

// Generate returns a stable temporary id of the form "IN_" followed by 16
// Base32 characters. The name is normalized before hashing, so all variants
// of the same company name collide on one id. That collision is the point:
// it keeps ids stable across runs, environments, and spelling variants.
func Generate(name, salt string) string {
	n := normalize.Name(name)
	if n == "" {
		n = emptyInput
	}

	mac := hmac.New(sha1.New, []byte(salt))
	mac.Write([]byte(n))
	digest := mac.Sum(nil)

	encoded := base32.StdEncoding.EncodeToString(digest[:10])
	return Prefix + encoded
}

// IsTemp reports whether id carries the temporary-id prefix. It matches the
// bare "IN" prefix used by consumers so legacy ids without the underscore
// are recognized too.
func IsTemp(id string) bool {
	return len(id) >= 2 && id[0] == 'I' && id[1] == 'N'
}
