// Package auth provides verifier combinators for the Tauth handshake
// (spec.md §4.5): the protocol only specifies the challenge/response
// state machine, not any cryptography, so the dispatcher hands off to
// an application-supplied Verifier.
//
// The combinator shapes (All/Any/Whitelist) are grounded on the
// teacher's styxauth package, generalized from styx.Auth's
// io.ReadWriter-based signature to the narrower
// (identity, pubkey, signature, challenge) tuple spec.md §4.5
// specifies for the dispatcher to hand a verifier.
package auth

import "errors"

// ErrFailed is returned by a Verifier (or wraps its cause) when a
// signature does not check out.
var ErrFailed = errors.New("authentication failed")

// Verifier checks a client's response to an auth challenge. uname is
// the identity claimed in the original Tauth; signature is the whole
// payload of the client's write to the auth-fid, and the server
// dispatcher passes pubkey as nil; challenge is the random bytes the
// dispatcher issued. The protocol does not interpret any of these; it only
// transports them.
type Verifier interface {
	Verify(uname string, pubkey, signature, challenge []byte) error
}

// VerifierFunc adapts a function to a Verifier.
type VerifierFunc func(uname string, pubkey, signature, challenge []byte) error

func (f VerifierFunc) Verify(uname string, pubkey, signature, challenge []byte) error {
	return f(uname, pubkey, signature, challenge)
}

type stackAll []Verifier

// All combines verifiers so that authentication succeeds only if every
// one of them succeeds, evaluated in order, short-circuiting on the
// first failure.
func All(v ...Verifier) Verifier { return stackAll(v) }

func (s stackAll) Verify(uname string, pubkey, signature, challenge []byte) error {
	for _, v := range s {
		if err := v.Verify(uname, pubkey, signature, challenge); err != nil {
			return err
		}
	}
	return nil
}

type stackAny []Verifier

// Any combines verifiers so that authentication succeeds if any one of
// them succeeds.
func Any(v ...Verifier) Verifier { return stackAny(v) }

func (s stackAny) Verify(uname string, pubkey, signature, challenge []byte) error {
	for _, v := range s {
		if err := v.Verify(uname, pubkey, signature, challenge); err == nil {
			return nil
		}
	}
	return ErrFailed
}

// Whitelist authenticates successfully only for unames present in the
// allow set, ignoring pubkey/signature entirely. It is useful for
// tests and for backends that delegate identity checking to the
// transport (e.g. mutual TLS).
func Whitelist(unames ...string) Verifier {
	allow := make(map[string]bool, len(unames))
	for _, u := range unames {
		allow[u] = true
	}
	return VerifierFunc(func(uname string, _, _, _ []byte) error {
		if allow[uname] {
			return nil
		}
		return ErrFailed
	})
}
