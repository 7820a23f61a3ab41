package address

import (
	"xdao.co/pdavault/errs"
)

// Proof is the capability a program presents to spend from a derived address:
// the seeds and bump that reproduce it under the program's namespace.
//
// Build a Proof right before the transfer it authorizes; do not keep one around.
type Proof struct {
	Seeds   [][]byte
	Bump    uint8
	Program Address
}

// NewProof copies seeds so later mutation by the caller cannot change the proof.
func NewProof(seeds [][]byte, bump uint8, program Address) Proof {
	cp := make([][]byte, len(seeds))
	for i, s := range seeds {
		cp[i] = append([]byte(nil), s...)
	}
	return Proof{Seeds: cp, Bump: bump, Program: program}
}

// Address re-derives the address this proof speaks for.
func (p Proof) Address() (Address, error) {
	return CreateProgramAddress(p.Seeds, p.Bump, p.Program)
}

// Authorizes reports nil if the proof re-derives exactly target under program.
func (p Proof) Authorizes(target, program Address) error {
	if p.Program != program {
		return errs.New(errs.KindInvalidProof, "VAULT-DRV-010", "proof is for a different program")
	}
	derived, err := p.Address()
	if err != nil {
		return errs.Wrap(errs.KindInvalidProof, "VAULT-DRV-011", "proof does not derive an address", err)
	}
	if derived != target {
		return errs.New(errs.KindInvalidProof, "VAULT-DRV-012", "proof derives "+derived.String()+", not "+target.String())
	}
	return nil
}
