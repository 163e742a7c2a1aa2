package stacks

import (
	"bytes"
	"strings"

	"golang.org/x/xerrors"
)

const maxContractNameLength = 128

// Principal is a standard principal, or a contract principal when Name is set.
type Principal struct {
	Version byte
	Hash    [20]byte
	Name    string
}

// ParsePrincipal accepts "SP…" and "SP….contract-name", with or without the
// leading quote used by the Clarity repr.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "'")
	addr, name := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		addr, name = s[:i], s[i+1:]
		if err := checkContractName(name); err != nil {
			return Principal{}, err
		}
	}

	version, hash, err := DecodeAddress(addr)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Version: version, Hash: hash, Name: name}, nil
}

func checkContractName(name string) error {
	if len(name) == 0 || len(name) > maxContractNameLength {
		return xerrors.Errorf("invalid contract name length %d", len(name))
	}
	c := name[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return xerrors.Errorf("invalid contract name %q", name)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
		if !ok {
			return xerrors.Errorf("invalid contract name %q", name)
		}
	}
	return nil
}

func (p Principal) IsContract() bool {
	return p.Name != ""
}

func (p Principal) Address() string {
	addr, _ := AddressFromHash(p.Version, p.Hash)
	return addr
}

func (p Principal) String() string {
	if p.IsContract() {
		return p.Address() + "." + p.Name
	}
	return p.Address()
}

// Compare orders principals by their consensus serialization, which is the
// order the contract uses for principal-1 and principal-2.
func Compare(a, b Principal) int {
	return bytes.Compare(Serialize(PrincipalValue(a)), Serialize(PrincipalValue(b)))
}

// SortPair returns the two principals in channel order and whether they were
// swapped. Unparseable input falls back to plain string order.
func SortPair(a, b string) (string, string, bool) {
	pa, errA := ParsePrincipal(a)
	pb, errB := ParsePrincipal(b)
	if errA != nil || errB != nil {
		if a <= b {
			return a, b, false
		}
		return b, a, true
	}
	if Compare(pa, pb) <= 0 {
		return pa.String(), pb.String(), false
	}
	return pb.String(), pa.String(), true
}
