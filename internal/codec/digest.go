package codec

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/mixsync/internal/change"
)

// Domain prefixes for record digests. The version suffix follows the
// envelope version.
const (
	DomainSnapshot = "mixsync/snapshot/v1"
	DomainDelta    = "mixsync/delta/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns a hex SHA-256 of the record's canonical encoding. Peers
// holding the same record compute the same digest, which makes it usable
// to correlate send and apply log lines across machines.
func (c Codec) Digest(rec change.Record) (string, error) {
	data, err := c.Encode(rec)
	if err != nil {
		return "", err
	}
	return DigestBytes(rec.Kind(), data), nil
}

// DigestBytes digests an already encoded record of the given kind.
func DigestBytes(kind change.Kind, encoded []byte) string {
	domain := DomainSnapshot
	if kind == change.KindUpdate {
		domain = DomainDelta
	}
	return hashWithDomain(domain, encoded)
}
