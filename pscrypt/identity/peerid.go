package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

var ErrPeerIDLength = errors.New("identity: invalid PeerID length")

// PeerID = SHA-256(PublicKey).
type PeerID [32]byte

func PeerIDFromPublicKey(publicKey []byte) PeerID {
	return PeerID(sha256.Sum256(publicKey))
}

func ParsePeerIDHex(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, errors.Wrap(err, "identity: decode PeerID")
	}
	if len(b) != len(PeerID{}) {
		return PeerID{}, ErrPeerIDLength
	}
	return PeerID(b), nil
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first eight hex digits, for log fields.
func (id PeerID) Short() string {
	return hex.EncodeToString(id[:4])
}

// Allowlist is a set of permitted peers. An empty Allowlist permits everyone.
type Allowlist map[PeerID]struct{}

// ParseAllowlist parses hex PeerIDs.
func ParseAllowlist(ids []string) (Allowlist, error) {
	al := make(Allowlist, len(ids))
	for _, s := range ids {
		id, err := ParsePeerIDHex(s)
		if err != nil {
			return nil, errors.Wrapf(err, "identity: allowlist entry %q", s)
		}
		al[id] = struct{}{}
	}
	return al, nil
}

func (al Allowlist) Allows(id PeerID) bool {
	if len(al) == 0 {
		return true
	}
	_, ok := al[id]
	return ok
}
