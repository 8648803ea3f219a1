package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// CacheKeyPrefix namespaces content-hash keys in the durable cache file.
const CacheKeyPrefix = "cloudinary_"

// Fingerprint is the hex MD5 digest of an image's raw bytes.
type Fingerprint string

// NewFingerprint hashes raw image bytes.
func NewFingerprint(data []byte) Fingerprint {
	sum := md5.Sum(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// CacheKey is the durable key for the fingerprint.
func (f Fingerprint) CacheKey() string {
	return CacheKeyPrefix + string(f)
}

// FingerprintFromKey parses a durable cache key. Keys of any other kind are rejected.
func FingerprintFromKey(key string) (Fingerprint, bool) {
	hash, ok := strings.CutPrefix(key, CacheKeyPrefix)
	if !ok || !isMD5Hex(hash) {
		return "", false
	}
	return Fingerprint(hash), true
}

// ParseFingerprint validates a bare hex digest.
func ParseFingerprint(s string) (Fingerprint, bool) {
	if !isMD5Hex(s) {
		return "", false
	}
	return Fingerprint(s), true
}

func isMD5Hex(s string) bool {
	if len(s) != md5.Size*2 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// CacheEntry binds a fingerprint to the remote reference of its uploaded content.
type CacheEntry struct {
	Fingerprint Fingerprint
	Reference   string
}

// DedupCache is the narrow view of the shared fingerprint cache handed to workers.
type DedupCache interface {
	Lookup(fp Fingerprint) (string, bool)
	Insert(fp Fingerprint, reference string) error
}
