// Package ethereum provides the secp256k1 keys used to identify voters and the
// election administrator, with Ethereum compatible addresses and signatures.
package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.vocdoni.io/zkballot/util"
)

// SignatureLength is the size of an ECDSA signature in bytes (r, s, v)
const SignatureLength = ethcrypto.SignatureLength

// SigningPrefix is the prefix added when hashing
const SigningPrefix = "\u0019Ethereum Signed Message:\n"

// SignKeys represents an ECDSA pair of keys for signing.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty ECDSA pair of keys
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate generates new keys
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private hex key
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// PrivateKeyHex returns the private key as a hex string, without 0x prefix.
func (k *SignKeys) PrivateKeyHex() string {
	return fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
}

// Address returns the SignKeys ethereum address
func (k *SignKeys) Address() ethcommon.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// Sign signs a message with the Ethereum personal message prefix. Message is
// a raw payload, not a hash.
func (k *SignKeys) Sign(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	signature, err := ethcrypto.Sign(Hash(message), &k.Private)
	if err != nil {
		return nil, err
	}
	return signature, nil
}

// AddrFromSignature recovers the Ethereum address that created the signature of a message
func AddrFromSignature(message, signature []byte) (ethcommon.Address, error) {
	if len(signature) != SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("signature length not correct (%d)", len(signature))
	}
	sig := bytes.Clone(signature)
	if sig[64] > 1 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return ethcommon.Address{}, errors.New("bad recover ID byte")
	}
	pubKey, err := ethcrypto.SigToPub(Hash(message), sig)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// Hash data adding the Ethereum personal message prefix
func Hash(data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%d%s", SigningPrefix, len(data), data)
	return HashRaw(buf.Bytes())
}

// HashRaw hashes data with no prefix
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
