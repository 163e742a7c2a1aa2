package common

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

var (
	ErrUint128Overflow = xerrors.New("value exceeds uint128")
	ErrUint128Invalid  = xerrors.New("invalid unsigned integer")
)

// Uint128 is a Clarity uint. Arithmetic reports overflow instead of wrapping.
type Uint128 struct {
	v uint256.Int
}

func NewUint128(n uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(n)
	return u
}

// ParseUint128 accepts plain decimal digits and the Clarity repr form "u123".
func ParseUint128(s string) (Uint128, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "u")
	if s == "" {
		return Uint128{}, ErrUint128Invalid
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Uint128{}, xerrors.Errorf("%w: %q", ErrUint128Invalid, s)
		}
	}

	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Uint128{}, xerrors.Errorf("%w: %q", ErrUint128Invalid, s)
	}
	if b.BitLen() > 128 {
		return Uint128{}, ErrUint128Overflow
	}

	var u Uint128
	u.v.SetFromBig(b)
	return u, nil
}

func (u Uint128) Add(o Uint128) (Uint128, bool) {
	var r Uint128
	if _, overflow := r.v.AddOverflow(&u.v, &o.v); overflow {
		return Uint128{}, false
	}
	if r.v.BitLen() > 128 {
		return Uint128{}, false
	}
	return r, true
}

func (u Uint128) Sub(o Uint128) (Uint128, bool) {
	var r Uint128
	if _, underflow := r.v.SubOverflow(&u.v, &o.v); underflow {
		return Uint128{}, false
	}
	return r, true
}

func (u Uint128) Cmp(o Uint128) int {
	return u.v.Cmp(&o.v)
}

func (u Uint128) Eq(o Uint128) bool {
	return u.v.Eq(&o.v)
}

func (u Uint128) IsZero() bool {
	return u.v.IsZero()
}

func Max(a, b Uint128) Uint128 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Uint64 returns the value and whether it fits in 64 bits.
func (u Uint128) Uint64() (uint64, bool) {
	return u.v.Uint64(), u.v.IsUint64()
}

// Bytes16 is the big-endian encoding used by Clarity consensus serialization.
func (u Uint128) Bytes16() [16]byte {
	var out [16]byte
	b := u.v.Bytes32()
	copy(out[:], b[16:])
	return out
}

func (u Uint128) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(u.v.ToBig(), 0)
}

func (u Uint128) String() string {
	return u.v.ToBig().String()
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts JSON numbers as well as decimal strings, since
// chainhook payloads and clients disagree on the encoding.
func (u *Uint128) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = Uint128{}
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}

	v, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
