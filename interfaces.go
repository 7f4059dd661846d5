package stashfs

// Cipher seals and opens the serialized filesystem state.
// Implementations are expected to be deterministic per secret so that a
// state saved in one session can be opened in the next.
type Cipher interface {
	// Encrypt returns an opaque token for plaintext
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens a token produced by Encrypt.
	// Returns an error wrapping ErrDecryption if the token was tampered with,
	// sealed with another key or is not a token at all.
	Decrypt(token []byte) ([]byte, error)
}

// Store is a durable key/value byte store holding the persisted state.
// The stored bytes are opaque to the store.
type Store interface {
	// Load returns the value stored under key.
	// ok is false when no entry exists, which is not an error.
	Load(key string) (value []byte, ok bool, err error)

	// Save replaces the value stored under key
	Save(key string, value []byte) error
}
