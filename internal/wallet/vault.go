package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// c32Alphabet is the Crockford base32 character set Stacks addresses use.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// addressByteLen is the number of digest bytes encoded into an address
// payload. 24 bytes encode to 39 c32 characters, giving the standard
// 41-character address with its two-character prefix.
const addressByteLen = 24

// Vault mints one-time receiving addresses and holds the master key that
// encrypts their private keys at rest. Decrypted key material is returned
// to the caller for the scope of a single settlement call and must never
// be logged or cached.
type Vault struct {
	masterKey []byte
	prefix    string
}

// NewVault creates a vault from a hex-encoded 32-byte master key. The
// network selects the address prefix: ST for testnet, SP for mainnet.
func NewVault(masterKeyHex, network string) (*Vault, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}

	prefix := "ST"
	if network == "mainnet" {
		prefix = "SP"
	}

	return &Vault{masterKey: key, prefix: prefix}, nil
}

// MintAddress generates a fresh receiving address and returns it together
// with the encrypted private key. Addresses are derived from the key, so
// distinct keys always yield distinct addresses.
func (v *Vault) MintAddress() (address string, encryptedKey string, err error) {
	privateKey := make([]byte, 32)
	if _, err := rand.Read(privateKey); err != nil {
		return "", "", fmt.Errorf("failed to generate key material: %w", err)
	}

	address = v.deriveAddress(privateKey)

	encryptedKey, err = v.Encrypt(privateKey)
	if err != nil {
		return "", "", err
	}

	return address, encryptedKey, nil
}

// Encrypt seals key material with AES-256-GCM under the master key. The
// nonce is prepended to the ciphertext and the whole blob base64-encoded.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to initialize GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptKey opens previously encrypted key material. Callers keep the
// result scoped to the settlement call.
func (v *Vault) DecryptKey(encryptedKey string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("encrypted key is not valid base64: %w", err)
	}

	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted key is truncated")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key material: %w", err)
	}

	return plaintext, nil
}

// deriveAddress maps key material to an address by hashing it and
// c32-encoding the digest under the network prefix.
func (v *Vault) deriveAddress(privateKey []byte) string {
	digest := sha256.Sum256(privateKey)
	return v.prefix + c32Encode(digest[:addressByteLen])
}

// c32Encode packs bytes into 5-bit groups over the c32 alphabet
func c32Encode(data []byte) string {
	var out []byte
	var acc uint32
	var bits uint

	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, c32Alphabet[(acc>>bits)&0x1f])
		}
	}

	if bits > 0 {
		out = append(out, c32Alphabet[(acc<<(5-bits))&0x1f])
	}

	return string(out)
}
