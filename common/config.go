package common

import (
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/xerrors"
)

// Network is the chain context signatures and addresses are bound to.
type Network struct {
	Name           string
	ChainID        uint32
	AddressVersion byte
}

var (
	Mainnet = Network{Name: "mainnet", ChainID: 1, AddressVersion: 22}
	Testnet = Network{Name: "testnet", ChainID: 0x80000000, AddressVersion: 26}
	Devnet  = Network{Name: "devnet", ChainID: 0x80000000, AddressVersion: 26}
)

func NetworkByName(name string) (Network, error) {
	switch strings.ToLower(name) {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "devnet", "mocknet":
		return Devnet, nil
	}
	return Network{}, xerrors.Errorf("unknown network %q", name)
}

// Config is threaded through the codec, hub and reconciler.
type Config struct {
	Network    Network
	Owner      string
	PrivateKey *btcec.PrivateKey
	// Contract is the stackflow contract id whose events are reconciled.
	// Empty accepts events from any contract.
	Contract string
}
