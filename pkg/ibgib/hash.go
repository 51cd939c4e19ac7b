package ibgib

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/minio/blake2b-simd"
)

// HashFunc computes the digest of a message
type HashFunc func([]byte) []byte

// SHA256 digest, the default for node content hashes
func SHA256(msg []byte) []byte {
	sum := sha256.Sum256(msg)
	return sum[:]
}

// Blake2b 256 bits digest
func Blake2b(msg []byte) []byte {
	h := blake2b.New256()
	_, _ = h.Write(msg)
	return h.Sum(nil)
}

// HexDigest returns the lowercase hex digest of s. The empty string digests to "".
func HexDigest(hash HashFunc, s string) string {
	if s == "" {
		return ""
	}
	if hash == nil {
		hash = SHA256
	}
	return hex.EncodeToString(hash([]byte(s)))
}

// HexDigestBytes returns the lowercase hex digest of b, "" for no bytes.
func HexDigestBytes(hash HashFunc, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if hash == nil {
		hash = SHA256
	}
	return hex.EncodeToString(hash(b))
}

func upperDigest(s string) string {
	return strings.ToUpper(HexDigest(SHA256, s))
}

// Gib computes the content hash of a node from its id, data and relations.
func Gib(n *Node) (string, error) {
	if n == nil {
		return "", fmt.Errorf("nil node")
	}
	ibHash := upperDigest(n.ID)

	var relHash, dataHash string
	if hasRelations(n.Relations) {
		buf, err := json.Marshal(n.Relations)
		if err != nil {
			return "", fmt.Errorf("encoding relations of %q: %v", n.ID, err)
		}
		relHash = upperDigest(string(buf))
	}
	if len(n.Data) > 0 {
		buf, err := json.Marshal(n.Data)
		if err != nil {
			return "", fmt.Errorf("encoding data of %q: %v", n.ID, err)
		}
		dataHash = upperDigest(string(buf))
	}

	if relHash == "" && dataHash == "" {
		return upperDigest(ibHash), nil
	}
	return upperDigest(ibHash + relHash + dataHash), nil
}

func hasRelations(rels map[string][]string) bool {
	for _, addrs := range rels {
		if len(addrs) > 0 {
			return true
		}
	}
	return false
}

// Seal sets the content hash of a node and returns it
func Seal(n *Node) (*Node, error) {
	gib, err := Gib(n)
	if err != nil {
		return nil, err
	}
	n.ContentHash = gib
	return n, nil
}

// Verify checks that a non-primitive node's content hash matches its content.
func Verify(n *Node) error {
	if n == nil {
		return fmt.Errorf("nil node")
	}
	if n.ID == "" {
		return fmt.Errorf("node id required")
	}
	if n.IsPrimitive() {
		return nil
	}
	gib, err := Gib(n)
	if err != nil {
		return err
	}
	if gib != n.ContentHash {
		return fmt.Errorf("content hash mismatch for %s: computed %s", n.Addr(), gib)
	}
	return nil
}
