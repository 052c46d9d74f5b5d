package protocol

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
)

// Version is the remote mix protocol version carried in HELLO.
const Version = "1"

// Capability keys.
const (
	CapVersion    = "version"
	CapMaxScratch = "max_scratch"
	CapMaxStreams = "max_streams"
)

var (
	ErrHelloPeerIDMismatch = errors.New("protocol: hello peerid does not match public key")
	ErrHelloBadSignature   = errors.New("protocol: hello invalid signature")
	ErrHelloMissingKey     = errors.New("protocol: hello missing public key")
	ErrHelloStale          = errors.New("protocol: hello timestamp outside allowed skew")
	ErrHelloVersion        = errors.New("protocol: unsupported protocol version")
)

// Hello binds a connection to an Ed25519 identity and advertises what the
// sender can do. The signature covers SigningBytes().
type Hello struct {
	PeerID       string            `json:"peer_id"`
	PublicKey    []byte            `json:"public_key"`
	TimestampSec int64             `json:"timestamp_sec"`
	Nonce        []byte            `json:"nonce"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
	Signature    []byte            `json:"signature"`
}

// NewHello builds an unsigned HELLO. The protocol version is always set.
func NewHello(kp identity.KeyPair, capabilities map[string]string) (Hello, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return Hello{}, errors.Wrap(err, "protocol: hello nonce")
	}
	caps := map[string]string{CapVersion: Version}
	for k, v := range capabilities {
		caps[k] = v
	}
	return Hello{
		PeerID:       kp.PeerID().String(),
		PublicKey:    append([]byte(nil), kp.PublicKey...),
		TimestampSec: time.Now().Unix(),
		Nonce:        nonce,
		Capabilities: caps,
	}, nil
}

func (h Hello) SigningBytes() ([]byte, error) {
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return nil, ErrHelloMissingKey
	}
	id, err := identity.ParsePeerIDHex(h.PeerID)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.Write(id[:])
	b.Write(h.PublicKey)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(h.TimestampSec))
	b.Write(ts[:])
	b.Write(h.Nonce)

	keys := make([]string, 0, len(h.Capabilities))
	for k := range h.Capabilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&b, k)
		writeField(&b, h.Capabilities[k])
	}
	return b.Bytes(), nil
}

func writeField(b *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	b.Write(l[:])
	b.WriteString(s)
}

func (h *Hello) Sign(kp identity.KeyPair) error {
	toSign, err := h.SigningBytes()
	if err != nil {
		return err
	}
	h.Signature = kp.Sign(toSign)
	return nil
}

// Verify checks that the HELLO is self-consistent and correctly signed.
func (h Hello) Verify() error {
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return ErrHelloMissingKey
	}
	claimed, err := identity.ParsePeerIDHex(h.PeerID)
	if err != nil {
		return err
	}
	if identity.PeerIDFromPublicKey(h.PublicKey) != claimed {
		return ErrHelloPeerIDMismatch
	}
	toVerify, err := h.SigningBytes()
	if err != nil {
		return err
	}
	if !identity.Verify(ed25519.PublicKey(h.PublicKey), toVerify, h.Signature) {
		return ErrHelloBadSignature
	}
	return nil
}

// VerifyAt runs Verify and also rejects HELLOs whose timestamp is more
// than maxSkew away from now, or that speak another protocol version.
func (h Hello) VerifyAt(now time.Time, maxSkew time.Duration) error {
	if err := h.Verify(); err != nil {
		return err
	}
	if v := h.Capabilities[CapVersion]; v != Version {
		return errors.Wrapf(ErrHelloVersion, "%q", v)
	}
	if maxSkew > 0 {
		d := now.Sub(time.Unix(h.TimestampSec, 0))
		if d < 0 {
			d = -d
		}
		if d > maxSkew {
			return ErrHelloStale
		}
	}
	return nil
}

// MaxScratch returns the advertised scratch limit in bytes, or 0 when the
// peer does not advertise one.
func (h Hello) MaxScratch() int { return h.intCapability(CapMaxScratch) }

// MaxStreams returns how many worker streams the peer accepts at once, or 0
// when it does not say.
func (h Hello) MaxStreams() int { return h.intCapability(CapMaxStreams) }

func (h Hello) intCapability(key string) int {
	v, err := strconv.Atoi(h.Capabilities[key])
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func EncodeHello(h Hello) ([]byte, error) {
	return json.Marshal(h)
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return Hello{}, errors.Wrap(err, "protocol: decode hello")
	}
	if h.PeerID == "" {
		return Hello{}, errors.New("protocol: hello missing peer_id")
	}
	return h, nil
}
