package vault

import (
	"xdao.co/pdavault/address"
)

var (
	StateSeedPrefix = []byte("STATE")
	VaultSeedPrefix = []byte("VAULT")
)

// StateSeeds are the derivation seeds of an owner's state record address.
func StateSeeds(owner address.Address) [][]byte {
	return [][]byte{StateSeedPrefix, owner.Bytes()}
}

// VaultSeeds are the derivation seeds of the custody address for a state address.
func VaultSeeds(state address.Address) [][]byte {
	return [][]byte{VaultSeedPrefix, state.Bytes()}
}

// FindStateAddress derives the state record address for owner.
func FindStateAddress(program, owner address.Address) (address.Address, uint8, error) {
	return address.Derive(StateSeeds(owner), program)
}

// FindCustodyAddress derives the custody address that belongs to state.
func FindCustodyAddress(program, state address.Address) (address.Address, uint8, error) {
	return address.Derive(VaultSeeds(state), program)
}

// Addresses is the resolved derivation chain owner → state → custody.
type Addresses struct {
	Owner     address.Address
	State     address.Address
	StateBump uint8
	Custody   address.Address
	VaultBump uint8
}

// FindAddresses resolves both hops of the derivation chain for owner.
func FindAddresses(program, owner address.Address) (Addresses, error) {
	state, stateBump, err := FindStateAddress(program, owner)
	if err != nil {
		return Addresses{}, err
	}
	custody, vaultBump, err := FindCustodyAddress(program, state)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{
		Owner:     owner,
		State:     state,
		StateBump: stateBump,
		Custody:   custody,
		VaultBump: vaultBump,
	}, nil
}
