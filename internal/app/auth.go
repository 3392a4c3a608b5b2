package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"strconv"

	"escrowledger/internal/codec"
	"escrowledger/internal/state"
)

const txAuthDomainV1 = "esl/tx/v1"

func txAuthSignBytesV1(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV1)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV1)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return ErrInvalidRequest.Wrap("missing tx.nonce")
	}
	if env.Signer == "" {
		return ErrInvalidRequest.Wrap("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return ErrInvalidRequest.Wrap("missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return ErrInvalidRequest.Wrapf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// checkAndBumpNonce enforces strictly increasing numeric nonces per signer.
// It mutates state, so callers run it inside the staged tx clone only after
// the signature itself has verified.
func checkAndBumpNonce(st *state.State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return ErrInvalidRequest.Wrapf("invalid tx.nonce %q: must be a uint64", env.Nonce)
	}
	if n <= st.NonceMax[env.Signer] {
		return ErrInvalidRequest.Wrapf("replayed tx.nonce %d for signer %q", n, env.Signer)
	}
	st.NonceMax[env.Signer] = n
	return nil
}

// requireAccountAuth verifies that the envelope was signed by the given
// account's registered key and consumes the nonce.
func requireAccountAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if account == "" {
		return ErrInvalidRequest.Wrap("missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return ErrUnauthorized.Wrapf("tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return ErrUnauthorized.Wrapf("account %q missing pubKey (auth/register_account required)", account)
	}
	msg := txAuthSignBytesV1(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return ErrUnauthorized.Wrap("invalid signature")
	}
	return checkAndBumpNonce(st, env)
}

// requireRegisterAccountAuth authenticates a registration with the key being
// registered, so accounts bootstrap themselves.
func requireRegisterAccountAuth(st *state.State, env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if msg.Account == "" {
		return ErrInvalidRequest.Wrap("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return ErrInvalidRequest.Wrapf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return ErrUnauthorized.Wrapf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	signBytes := txAuthSignBytesV1(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(msg.PubKey), signBytes, env.Sig) {
		return ErrUnauthorized.Wrap("invalid signature")
	}
	return checkAndBumpNonce(st, env)
}

// requireAdminAuth gates the administrative operations (table registry,
// sweep) behind an explicit capability check against the genesis admin.
func requireAdminAuth(st *state.State, env codec.TxEnvelope, caller string) error {
	if st.Admin == "" {
		return ErrUnauthorized.Wrap("no administrator configured")
	}
	if caller != st.Admin {
		return ErrUnauthorized.Wrapf("caller %q is not the administrator", caller)
	}
	return requireAccountAuth(st, env, st.Admin)
}
