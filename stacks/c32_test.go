package stacks

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rqzrqh/stackflow_hub/common"
)

func TestAddressFromHash(t *testing.T) {
	raw, err := hex.DecodeString("a46ff88886c2ef9762d970b4d2c63678835bd39d")
	require.NoError(t, err)

	var hash [20]byte
	copy(hash[:], raw)

	addr, err := AddressFromHash(22, hash)
	require.NoError(t, err)
	require.Equal(t, "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", addr)

	version, decoded, err := DecodeAddress(addr)
	require.NoError(t, err)
	require.Equal(t, byte(22), version)
	require.Equal(t, hash, decoded)
}

func TestDecodeAddressRoundTrip(t *testing.T) {
	for _, addr := range []string{
		"SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS",
		"SP3619DGWH08262BJAG0NPFHZQDPN4TKMXHC0ZQDN",
	} {
		version, hash, err := DecodeAddress(addr)
		require.NoError(t, err, addr)
		require.Equal(t, byte(22), version)

		again, err := AddressFromHash(version, hash)
		require.NoError(t, err)
		require.Equal(t, addr, again)
	}
}

func TestDecodeAddressBadChecksum(t *testing.T) {
	_, _, err := DecodeAddress("SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KT")
	require.Error(t, err)

	_, _, err = DecodeAddress("XP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS")
	require.Error(t, err)
}

func TestC32LeadingZeros(t *testing.T) {
	data := []byte{0, 0, 1, 2, 3}
	enc := C32Encode(data)
	require.Equal(t, "00", enc[:2])

	dec, err := C32Decode(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)

	var zeroHash [20]byte
	addr, err := AddressFromHash(26, zeroHash)
	require.NoError(t, err)
	_, hash, err := DecodeAddress(addr)
	require.NoError(t, err)
	require.Equal(t, zeroHash, hash)
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("'SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS.stackflow-0-2-2")
	require.NoError(t, err)
	require.True(t, p.IsContract())
	require.Equal(t, "stackflow-0-2-2", p.Name)
	require.Equal(t, "SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS.stackflow-0-2-2", p.String())

	_, err = ParsePrincipal("SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS.1bad")
	require.Error(t, err)

	_, err = ParsePrincipal("")
	require.Error(t, err)
}

func TestSortPair(t *testing.T) {
	a := "SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS"
	b := "SP3619DGWH08262BJAG0NPFHZQDPN4TKMXHC0ZQDN"

	p1, p2, swapped := SortPair(a, b)
	q1, q2, swappedBack := SortPair(b, a)
	require.Equal(t, p1, q1)
	require.Equal(t, p2, q2)
	require.NotEqual(t, swapped, swappedBack)
}

func TestSerialize(t *testing.T) {
	require.Equal(t, append([]byte{0x01}, make([]byte, 16)...), Serialize(UInt(common.NewUint128(0))))

	v := Serialize(UInt(common.NewUint128(258)))
	require.Len(t, v, 17)
	require.Equal(t, byte(0x01), v[0])
	require.Equal(t, []byte{0x01, 0x02}, v[15:])

	require.Equal(t, []byte{0x09}, Serialize(None()))
	require.Equal(t, []byte{0x0a, 0x02, 0, 0, 0, 2, 0xab, 0xcd}, Serialize(Some(Buffer([]byte{0xab, 0xcd}))))
	require.Equal(t, []byte{0x0d, 0, 0, 0, 2, 'h', 'i'}, Serialize(StringASCII("hi")))

	// keys serialize sorted regardless of map order
	tuple := Serialize(Tuple{"b": None(), "a": None()})
	require.Equal(t, []byte{0x0c, 0, 0, 0, 2, 1, 'a', 0x09, 1, 'b', 0x09}, tuple)
}
