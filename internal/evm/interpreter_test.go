package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/state"
	"github.com/stretchr/testify/require"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *state.Store) {
	t.Helper()
	store := state.New(nil)
	cfg, err := config.Load("")
	require.NoError(t, err)
	return New(store, cfg, nil), store
}

// PUSH1 0x2a PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
func returnConstantCode(v byte) []byte {
	return []byte{
		byte(bytecode.PUSH1), v,
		byte(bytecode.PUSH1), 0x00,
		byte(bytecode.MSTORE),
		byte(bytecode.PUSH1), 0x20,
		byte(bytecode.PUSH1), 0x00,
		byte(bytecode.RETURN),
	}
}

func TestRunReturnsDeployedCodeOutput(t *testing.T) {
	in, store := newTestInterpreter(t)

	addr := common.HexToAddress("0x00000000000000000000000000000000000001")
	store.SetCode(addr, returnConstantCode(0x2a))

	res := in.Run(Transaction{From: common.HexToAddress("0xaa"), To: &addr, GasLimit: 1_000_000})

	require.NoError(t, res.Err)
	require.Len(t, res.ReturnData, 32)
	require.Equal(t, byte(0x2a), res.ReturnData[31])
}

func TestSubComputesTopMinusSecond(t *testing.T) {
	in, store := newTestInterpreter(t)

	// PUSH1 0x0a PUSH1 0x03 SUB PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
	// stack after pushes (top first): 0x03, 0x0a -> SUB computes top(0x03) - second(0x0a)
	code := []byte{
		byte(bytecode.PUSH1), 0x0a,
		byte(bytecode.PUSH1), 0x03,
		byte(bytecode.SUB),
		byte(bytecode.PUSH1), 0x00,
		byte(bytecode.MSTORE),
		byte(bytecode.PUSH1), 0x20,
		byte(bytecode.PUSH1), 0x00,
		byte(bytecode.RETURN),
	}

	addr := common.HexToAddress("0x02")
	store.SetCode(addr, code)

	res := in.Run(Transaction{From: common.HexToAddress("0xaa"), To: &addr, GasLimit: 1_000_000})

	require.NoError(t, res.Err)
	require.Len(t, res.ReturnData, 32)
	require.Equal(t, byte(0xf9), res.ReturnData[31]) // 3 - 10 mod 2^256, low byte 0xf9
}

func TestInvalidJumpProducesExecutionError(t *testing.T) {
	in, store := newTestInterpreter(t)

	code := []byte{
		byte(bytecode.PUSH1), 0x05,
		byte(bytecode.JUMP),
		byte(bytecode.STOP),
	}

	addr := common.HexToAddress("0x03")
	store.SetCode(addr, code)

	res := in.Run(Transaction{From: common.HexToAddress("0xaa"), To: &addr, GasLimit: 1_000_000})

	require.Error(t, res.Err)
}

func TestJumpToValidJumpdest(t *testing.T) {
	in, store := newTestInterpreter(t)

	// PUSH1 0x04 JUMP INVALID JUMPDEST STOP
	code := []byte{
		byte(bytecode.PUSH1), 0x04,
		byte(bytecode.JUMP),
		byte(bytecode.INVALID),
		byte(bytecode.JUMPDEST),
		byte(bytecode.STOP),
	}

	addr := common.HexToAddress("0x04")
	store.SetCode(addr, code)

	res := in.Run(Transaction{From: common.HexToAddress("0xaa"), To: &addr, GasLimit: 1_000_000})

	require.NoError(t, res.Err)
}

func TestCallReturnOverrideSkipsRealCall(t *testing.T) {
	in, store := newTestInterpreter(t)

	target := common.HexToAddress("0x05")

	// CALL(gas, target, 0, 0, 0, 0, 0x20) then RETURN the outOffset word
	code := []byte{
		byte(bytecode.PUSH1), 0x20, // retSize
		byte(bytecode.PUSH1), 0x00, // retOffset
		byte(bytecode.PUSH1), 0x00, // argsSize
		byte(bytecode.PUSH1), 0x00, // argsOffset
		byte(bytecode.PUSH1), 0x00, // value
		byte(bytecode.PUSH1 + 19),
	}
	code = append(code, target.Bytes()...)
	code = append(code,
		byte(bytecode.PUSH1+1), 0xff, 0xff, // gas
		byte(bytecode.CALL),
		byte(bytecode.POP),
		byte(bytecode.PUSH1), 0x20,
		byte(bytecode.PUSH1), 0x00,
		byte(bytecode.RETURN),
	)

	self := common.HexToAddress("0x06")
	store.SetCode(self, code)

	res := in.Run(Transaction{
		From: common.HexToAddress("0xaa"), To: &self, GasLimit: 1_000_000,
		Overrides: Overrides{CallReturn: map[common.Address]uint64{target: 1}},
	})

	require.NoError(t, res.Err)
}

func TestOutOfGasHalts(t *testing.T) {
	in, store := newTestInterpreter(t)

	code := []byte{byte(bytecode.SSTORE)}
	addr := common.HexToAddress("0x07")
	store.SetCode(addr, code)

	res := in.Run(Transaction{From: common.HexToAddress("0xaa"), To: &addr, GasLimit: 1})

	require.Error(t, res.Err)
}
