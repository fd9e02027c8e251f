package types

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// FieldElementSize is the byte size of a BN254 scalar field element.
const FieldElementSize = fr.Bytes

// BigInt is a big.Int wrapper which marshals JSON to a string representation
// of the big number. It is used for field elements (commitments, nullifiers,
// public signals) across the module.
type BigInt big.Int

// NewInt returns a BigInt holding x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// ParseBigInt parses a decimal (or 0x-prefixed hexadecimal) number.
func ParseBigInt(s string) (*BigInt, error) {
	i, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("wrong format for bigInt: %q", s)
	}
	return (*BigInt)(i), nil
}

func (i BigInt) MarshalText() ([]byte, error) {
	return []byte((*big.Int)(&i).String()), nil
}

func (i *BigInt) UnmarshalText(data []byte) error {
	i2, ok := new(big.Int).SetString(string(data), 0)
	if !ok {
		return fmt.Errorf("wrong format for bigInt: %q", string(data))
	}
	*i = (BigInt)(*i2)
	return nil
}

// String returns the string representation of the big number
func (i *BigInt) String() string {
	return (*big.Int)(i).String()
}

// SetBytes interprets buf as big-endian unsigned integer
func (i *BigInt) SetBytes(buf []byte) *BigInt {
	return (*BigInt)(i.MathBigInt().SetBytes(buf))
}

// SetString interprets the string as a base 10 big number
func (i *BigInt) SetString(s string) (*BigInt, error) {
	bi, ok := i.MathBigInt().SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("cannot set string %s", s)
	}
	return (*BigInt)(bi), nil
}

// Bytes returns the minimal big-endian representation of the big number
func (i *BigInt) Bytes() []byte {
	return (*big.Int)(i).Bytes()
}

// FieldBytes returns the number as a fixed size big-endian field element. It
// must be called only on values for which IsFieldElement is true.
func (i *BigInt) FieldBytes() []byte {
	out := make([]byte, FieldElementSize)
	return i.MathBigInt().FillBytes(out)
}

// IsFieldElement reports whether the number is a canonical BN254 scalar field
// element, i.e. 0 <= i < r.
func (i *BigInt) IsFieldElement() bool {
	if i == nil {
		return false
	}
	b := i.MathBigInt()
	return b.Sign() >= 0 && b.Cmp(fr.Modulus()) < 0
}

// MathBigInt converts b to a math/big *Int.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// Add sum x+y
func (i *BigInt) Add(x *BigInt, y *BigInt) *BigInt {
	return (*BigInt)(i.MathBigInt().Add(x.MathBigInt(), y.MathBigInt()))
}

// SetUint64 sets the value of x to the big number
func (i *BigInt) SetUint64(x uint64) *BigInt {
	return (*BigInt)(i.MathBigInt().SetUint64(x))
}

// Equal helps us with go-cmp.
func (i *BigInt) Equal(j *BigInt) bool {
	if i == nil || j == nil {
		return (i == nil) == (j == nil)
	}
	return i.MathBigInt().Cmp(j.MathBigInt()) == 0
}

// FieldModulus returns a copy of the BN254 scalar field modulus.
func FieldModulus() *BigInt {
	return (*BigInt)(fr.Modulus())
}
