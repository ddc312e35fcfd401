// Package utils derives deterministic identifiers from string seeds.
package utils

import (
	"crypto/md5"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
)

// GenUuidFromStrings hashes the given seeds into a stable uuid. The seeds
// are sorted first, so the result does not depend on argument order. No
// seeds hashes the nil uuid's string.
func GenUuidFromStrings(uuids ...string) string {
	if len(uuids) == 0 {
		uuids = append(uuids, "00000000-0000-0000-0000-000000000000")
	}

	sorted := make([]string, len(uuids))
	copy(sorted, uuids)
	sort.Strings(sorted)

	return uuidHash([]byte(strings.Join(sorted, "")))
}

// uuidHash stamps version 3 and the RFC 4122 variant onto an md5 digest.
func uuidHash(b []byte) string {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}
