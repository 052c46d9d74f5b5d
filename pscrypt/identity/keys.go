package identity

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"
)

var ErrKeySize = errors.New("identity: invalid Ed25519 key size")

// KeyPair holds the Ed25519 keys a mix server or client authenticates with.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, errors.Wrap(err, "identity: generate key")
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// KeyPairFromSeed derives a key pair from a 32-byte seed, so a worker can
// keep a stable PeerID across restarts.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, ErrKeySize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

func (kp KeyPair) PeerID() PeerID {
	return PeerIDFromPublicKey(kp.PublicKey)
}

func (kp KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, message)
}

func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
