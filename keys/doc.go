// Package keys manages vault owner keys.
//
// Owner keys are Ed25519 seeds kept as hex files in a local key store
// (~/.pdavault/keys by default). A root seed can deterministically derive any
// number of labelled owner seeds, so one backup restores every vault owner.
package keys
