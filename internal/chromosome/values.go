package chromosome

import (
	"fmt"
	"math/big"
	"math/rand"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// randomAddress draws a target address from the attacker/deployed-contract
// pool, or a fresh random one so the search can eventually discover
// addresses nobody seeded, mirroring the original generator's account
// selection over "attacker accounts plus any created by the solver".
func randomAddress(pool []common.Address, rng *rand.Rand) common.Address {
	if len(pool) > 0 && rng.Intn(4) != 0 {
		return pool[rng.Intn(len(pool))]
	}
	var addr common.Address
	rng.Read(addr[:])
	return addr
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func randomString(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	n := rng.Intn(16)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func randomBigInt(bits int, signed bool, rng *rand.Rand) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	v := new(big.Int).Rand(rng, max)
	if signed && v.Bit(bits-1) == 1 {
		v.Sub(v, max)
	}
	return v
}

// randomArgument produces a value for one ABI-typed function argument, the
// Go realization of the original generator's per-declared-type random
// value construction (`generate_random_argument` in the reference
// fuzzer), using reflection the same way go-ethereum's own abi package
// packs arguments so the result always matches what (abi.ABI).Pack
// expects.
func randomArgument(t abi.Type, pool []common.Address, rng *rand.Rand) (interface{}, error) {
	v, err := randomReflectValue(t, pool, rng)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func randomReflectValue(t abi.Type, pool []common.Address, rng *rand.Rand) (reflect.Value, error) {
	switch t.T {
	case abi.BoolTy:
		v := reflect.New(t.GetType()).Elem()
		v.SetBool(rng.Intn(2) == 1)
		return v, nil

	case abi.AddressTy:
		return reflect.ValueOf(randomAddress(pool, rng)), nil

	case abi.StringTy:
		v := reflect.New(t.GetType()).Elem()
		v.SetString(randomString(rng))
		return v, nil

	case abi.BytesTy:
		v := reflect.New(t.GetType()).Elem()
		v.SetBytes(randomBytes(rng, rng.Intn(33)))
		return v, nil

	case abi.FixedBytesTy:
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(randomBytes(rng, t.Size)))
		return v, nil

	case abi.UintTy, abi.IntTy:
		return randomIntReflectValue(t, rng)

	case abi.SliceTy:
		n := rng.Intn(5)
		v := reflect.MakeSlice(t.GetType(), n, n)
		for i := 0; i < n; i++ {
			elem, err := randomReflectValue(*t.Elem, pool, rng)
			if err != nil {
				return reflect.Value{}, err
			}
			v.Index(i).Set(elem)
		}
		return v, nil

	case abi.ArrayTy:
		v := reflect.New(t.GetType()).Elem()
		for i := 0; i < t.Size; i++ {
			elem, err := randomReflectValue(*t.Elem, pool, rng)
			if err != nil {
				return reflect.Value{}, err
			}
			v.Index(i).Set(elem)
		}
		return v, nil

	default:
		return reflect.Value{}, fmt.Errorf("chromosome: unsupported argument type %s", t.String())
	}
}

func randomIntReflectValue(t abi.Type, rng *rand.Rand) (reflect.Value, error) {
	goType := t.GetType()
	signed := t.T == abi.IntTy

	if goType.Kind() == reflect.Ptr {
		return reflect.ValueOf(randomBigInt(t.Size, signed, rng)), nil
	}

	switch goType.Kind() {
	case reflect.Uint8:
		return reflect.ValueOf(uint8(rng.Intn(1 << 8))), nil
	case reflect.Uint16:
		return reflect.ValueOf(uint16(rng.Intn(1 << 16))), nil
	case reflect.Uint32:
		return reflect.ValueOf(rng.Uint32()), nil
	case reflect.Uint64:
		return reflect.ValueOf(rng.Uint64()), nil
	case reflect.Int8:
		return reflect.ValueOf(int8(rng.Intn(1 << 8))), nil
	case reflect.Int16:
		return reflect.ValueOf(int16(rng.Intn(1 << 16))), nil
	case reflect.Int32:
		return reflect.ValueOf(int32(rng.Uint32())), nil
	case reflect.Int64:
		return reflect.ValueOf(int64(rng.Uint64())), nil
	default:
		return reflect.Value{}, fmt.Errorf("chromosome: unsupported integer kind %s", goType.Kind())
	}
}
