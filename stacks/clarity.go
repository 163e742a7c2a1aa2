package stacks

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/rqzrqh/stackflow_hub/common"
)

// Clarity consensus serialization type prefixes.
const (
	typeUInt              byte = 0x01
	typeBuffer            byte = 0x02
	typeStandardPrincipal byte = 0x05
	typeContractPrincipal byte = 0x06
	typeNone              byte = 0x09
	typeSome              byte = 0x0a
	typeTuple             byte = 0x0c
	typeStringASCII       byte = 0x0d
)

// Value is a Clarity value that can be consensus-serialized.
type Value interface {
	encode(w *bytes.Buffer)
}

func Serialize(v Value) []byte {
	var w bytes.Buffer
	v.encode(&w)
	return w.Bytes()
}

type uintValue [16]byte

func UInt(n common.Uint128) Value {
	return uintValue(n.Bytes16())
}

func (v uintValue) encode(w *bytes.Buffer) {
	w.WriteByte(typeUInt)
	w.Write(v[:])
}

type bufferValue []byte

func Buffer(b []byte) Value {
	return bufferValue(b)
}

func (v bufferValue) encode(w *bytes.Buffer) {
	w.WriteByte(typeBuffer)
	writeLength(w, len(v))
	w.Write(v)
}

type asciiValue string

func StringASCII(s string) Value {
	return asciiValue(s)
}

func (v asciiValue) encode(w *bytes.Buffer) {
	w.WriteByte(typeStringASCII)
	writeLength(w, len(v))
	w.WriteString(string(v))
}

type noneValue struct{}

func None() Value {
	return noneValue{}
}

func (noneValue) encode(w *bytes.Buffer) {
	w.WriteByte(typeNone)
}

type someValue struct {
	inner Value
}

func Some(v Value) Value {
	return someValue{inner: v}
}

func (v someValue) encode(w *bytes.Buffer) {
	w.WriteByte(typeSome)
	v.inner.encode(w)
}

type principalValue Principal

func PrincipalValue(p Principal) Value {
	return principalValue(p)
}

func (v principalValue) encode(w *bytes.Buffer) {
	if v.Name == "" {
		w.WriteByte(typeStandardPrincipal)
	} else {
		w.WriteByte(typeContractPrincipal)
	}
	w.WriteByte(v.Version)
	w.Write(v.Hash[:])
	if v.Name != "" {
		w.WriteByte(byte(len(v.Name)))
		w.WriteString(v.Name)
	}
}

// Tuple entries are serialized in lexicographic key order.
type Tuple map[string]Value

func (t Tuple) encode(w *bytes.Buffer) {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.WriteByte(typeTuple)
	writeLength(w, len(keys))
	for _, k := range keys {
		w.WriteByte(byte(len(k)))
		w.WriteString(k)
		t[k].encode(w)
	}
}

func writeLength(w *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	w.Write(b[:])
}
