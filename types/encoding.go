package types

import (
	"encoding/hex"

	"go.vocdoni.io/zkballot/util"
)

// HexBytes is a []byte which encodes as hexadecimal text (JSON, YAML, map
// keys), as opposed to the base64 default. CBOR keeps the raw bytes.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(enc, b)
	return enc, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A leading 0x is
// accepted.
func (b *HexBytes) UnmarshalText(text []byte) error {
	decoded, err := HexStringToHexBytes(string(text))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string to a HexBytes.
// It strips a leading '0x' or '0X' if found.
func HexStringToHexBytes(hexString string) (HexBytes, error) {
	return hex.DecodeString(util.TrimHex(hexString))
}
