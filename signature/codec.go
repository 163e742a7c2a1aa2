package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

const (
	DomainName    = "StackFlow"
	DomainVersion = "0.2.2"

	// Size is the length of an RSV signature.
	Size = 65
	// HashedSecretSize is the length of a sha256 secret hash.
	HashedSecretSize = 32
)

// SIP-018 structured data prefix.
var structuredDataPrefix = []byte{0x53, 0x49, 0x50, 0x30, 0x31, 0x38}

// Message is the state tuple both parties sign.
type Message struct {
	Asset        common.Asset
	Principal1   string
	Principal2   string
	Balance1     common.Uint128
	Balance2     common.Uint128
	Nonce        common.Uint128
	Action       common.Action
	Actor        string
	HashedSecret []byte
}

type Codec struct {
	network       common.Network
	domainName    string
	domainVersion string
}

func NewCodec(network common.Network) *Codec {
	return &Codec{
		network:       network,
		domainName:    DomainName,
		domainVersion: DomainVersion,
	}
}

func (c *Codec) Network() common.Network {
	return c.network
}

func (c *Codec) domain() stacks.Value {
	return stacks.Tuple{
		"name":     stacks.StringASCII(c.domainName),
		"version":  stacks.StringASCII(c.domainVersion),
		"chain-id": stacks.UInt(common.NewUint128(uint64(c.network.ChainID))),
	}
}

func (m *Message) tuple() (stacks.Value, error) {
	p1, err := stacks.ParsePrincipal(m.Principal1)
	if err != nil {
		return nil, xerrors.Errorf("principal-1: %w", err)
	}
	p2, err := stacks.ParsePrincipal(m.Principal2)
	if err != nil {
		return nil, xerrors.Errorf("principal-2: %w", err)
	}

	token := stacks.None()
	if !m.Asset.IsNative() {
		t, err := stacks.ParsePrincipal(string(m.Asset))
		if err != nil {
			return nil, xerrors.Errorf("token: %w", err)
		}
		if !t.IsContract() {
			return nil, xerrors.Errorf("token %q is not a contract principal", m.Asset)
		}
		token = stacks.Some(stacks.PrincipalValue(t))
	}

	actor := stacks.None()
	if m.Actor != "" {
		a, err := stacks.ParsePrincipal(m.Actor)
		if err != nil {
			return nil, xerrors.Errorf("actor: %w", err)
		}
		actor = stacks.Some(stacks.PrincipalValue(a))
	}

	secret := stacks.None()
	if m.HashedSecret != nil {
		secret = stacks.Some(stacks.Buffer(m.HashedSecret))
	}

	return stacks.Tuple{
		"token":         token,
		"principal-1":   stacks.PrincipalValue(p1),
		"principal-2":   stacks.PrincipalValue(p2),
		"balance-1":     stacks.UInt(m.Balance1),
		"balance-2":     stacks.UInt(m.Balance2),
		"nonce":         stacks.UInt(m.Nonce),
		"action":        stacks.UInt(common.NewUint128(uint64(m.Action))),
		"actor":         actor,
		"hashed-secret": secret,
	}, nil
}

// Hash is sha256(prefix || sha256(domain) || sha256(message)).
func (c *Codec) Hash(m *Message) ([]byte, error) {
	msg, err := m.tuple()
	if err != nil {
		return nil, err
	}

	domainHash := sha256.Sum256(stacks.Serialize(c.domain()))
	msgHash := sha256.Sum256(stacks.Serialize(msg))

	buf := make([]byte, 0, len(structuredDataPrefix)+64)
	buf = append(buf, structuredDataPrefix...)
	buf = append(buf, domainHash[:]...)
	buf = append(buf, msgHash[:]...)
	h := sha256.Sum256(buf)
	return h[:], nil
}

// Sign returns a 65-byte RSV signature.
func (c *Codec) Sign(key *btcec.PrivateKey, m *Message) ([]byte, error) {
	if key == nil {
		return nil, xerrors.New("no signing key")
	}
	hash, err := c.Hash(m)
	if err != nil {
		return nil, err
	}

	compact, err := ecdsa.SignCompact(key, hash, true)
	if err != nil {
		return nil, err
	}

	// compact is [27+4+recid || R || S]
	sig := make([]byte, 0, Size)
	sig = append(sig, compact[1:]...)
	sig = append(sig, compact[0]-31)
	return sig, nil
}

// Verify reports whether sig was produced over m by the key controlling
// signer on this codec's network. Any malformed input yields false.
func (c *Codec) Verify(sig []byte, signer string, m *Message) bool {
	if len(sig) != Size || sig[64] > 3 {
		return false
	}
	p, err := stacks.ParsePrincipal(signer)
	if err != nil || p.IsContract() || p.Version != c.network.AddressVersion {
		return false
	}
	hash, err := c.Hash(m)
	if err != nil {
		return false
	}

	compact := make([]byte, 0, Size)
	compact = append(compact, sig[64]+31)
	compact = append(compact, sig[:64]...)
	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return false
	}

	var h [20]byte
	copy(h[:], btcutil.Hash160(pub.SerializeCompressed()))
	return h == p.Hash
}

// AddressOf returns the single-sig principal of a public key.
func AddressOf(pub *btcec.PublicKey, network common.Network) string {
	var h [20]byte
	copy(h[:], btcutil.Hash160(pub.SerializeCompressed()))
	addr, _ := stacks.AddressFromHash(network.AddressVersion, h)
	return addr
}

// ParsePrivateKey accepts 32 raw bytes or 33 with the 0x01 compression flag.
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 33 && b[32] == 0x01 {
		b = b[:32]
	}
	if len(b) != 32 {
		return nil, xerrors.Errorf("invalid private key length %d", len(b))
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return key, nil
}

func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}

func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
