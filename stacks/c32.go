package stacks

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"strings"

	"golang.org/x/xerrors"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ErrInvalidC32      = xerrors.New("invalid c32 string")
	ErrInvalidChecksum = xerrors.New("invalid c32check checksum")
	ErrInvalidAddress  = xerrors.New("invalid stacks address")
)

var big32 = big.NewInt(32)

// C32Encode encodes data as a base-32 number, keeping one '0' per leading
// zero byte.
func C32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	mod := new(big.Int)
	out := make([]byte, 0, len(data)*8/5+1)
	for n.Sign() > 0 {
		n.DivMod(n, big32, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, c32Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func C32Decode(s string) ([]byte, error) {
	s = c32Normalize(s)

	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}

	n := new(big.Int)
	for i := zeros; i < len(s); i++ {
		idx := strings.IndexByte(c32Alphabet, s[i])
		if idx < 0 {
			return nil, xerrors.Errorf("%w: %q", ErrInvalidC32, s[i])
		}
		n.Mul(n, big32)
		n.Add(n, big.NewInt(int64(idx)))
	}

	return append(make([]byte, zeros), n.Bytes()...), nil
}

func c32Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

func c32Checksum(version byte, data []byte) []byte {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, version)
	buf = append(buf, data...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func C32CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", xerrors.Errorf("invalid c32check version %d", version)
	}
	payload := make([]byte, 0, len(data)+4)
	payload = append(payload, data...)
	payload = append(payload, c32Checksum(version, data)...)
	return string(c32Alphabet[version]) + C32Encode(payload), nil
}

func C32CheckDecode(s string) (byte, []byte, error) {
	s = c32Normalize(s)
	if len(s) < 2 {
		return 0, nil, ErrInvalidC32
	}
	version := strings.IndexByte(c32Alphabet, s[0])
	if version < 0 {
		return 0, nil, xerrors.Errorf("%w: version %q", ErrInvalidC32, s[0])
	}
	payload, err := C32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, ErrInvalidChecksum
	}
	data, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !bytes.Equal(sum, c32Checksum(byte(version), data)) {
		return 0, nil, ErrInvalidChecksum
	}
	return byte(version), data, nil
}

// AddressFromHash builds an "S"-prefixed address for a hash160.
func AddressFromHash(version byte, hash [20]byte) (string, error) {
	enc, err := C32CheckEncode(version, hash[:])
	if err != nil {
		return "", err
	}
	return "S" + enc, nil
}

func DecodeAddress(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	if len(addr) < 3 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, hash, xerrors.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	version, data, err := C32CheckDecode(addr[1:])
	if err != nil {
		return 0, hash, xerrors.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	// leading zero bytes of the hash are kept by the encoding, so anything
	// shorter than 20 bytes here is malformed.
	if len(data) != 20 {
		return 0, hash, xerrors.Errorf("%w: %q has %d hash bytes", ErrInvalidAddress, addr, len(data))
	}
	copy(hash[:], data)
	return version, hash, nil
}
