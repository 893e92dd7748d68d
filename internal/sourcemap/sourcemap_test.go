package sourcemap

import (
	"os"
	"path/filepath"
	"testing"
)

// a single PUSH1 0x00; STOP contract, with one legacyAssembly `.code` entry
// per instruction (matching solc's one-tag-per-PUSH/STOP shape closely
// enough to exercise the zipping logic without a real solc run).
const fakeCompilerOutput = `{
	"contracts": {
		"Foo.sol": {
			"Foo": {
				"evm": {
					"deployedBytecode": {"object": "600000"},
					"legacyAssembly": {
						".code": [
							{"begin": 10, "end": 20, "name": "PUSH"},
							{"begin": 25, "end": 30, "name": "STOP"}
						]
					}
				}
			}
		}
	}
}`

const fakeSource = "contract Foo {\n    function f() public {\n        revert();\n    }\n}\n"

func writeFixtures(t *testing.T) (compilerPath, sourcePath string) {
	t.Helper()

	dir := t.TempDir()

	compilerPath = filepath.Join(dir, "output.json")
	if err := os.WriteFile(compilerPath, []byte(fakeCompilerOutput), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	sourcePath = filepath.Join(dir, "Foo.sol")
	if err := os.WriteFile(sourcePath, []byte(fakeSource), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	return compilerPath, sourcePath
}

func TestLoadZipsPositionsToPC(t *testing.T) {
	compilerPath, sourcePath := writeFixtures(t)

	sm, err := Load(compilerPath, sourcePath, "Foo.sol", "Foo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := sm.SourceCode(0); got != fakeSource[10:20] {
		t.Fatalf("pc 0 source = %q, want %q", got, fakeSource[10:20])
	}

	if got := sm.SourceCode(2); got != fakeSource[25:30] {
		t.Fatalf("pc 2 source = %q, want %q", got, fakeSource[25:30])
	}
}

func TestLocationReturnsOneIndexedLineColumn(t *testing.T) {
	compilerPath, sourcePath := writeFixtures(t)

	sm, err := Load(compilerPath, sourcePath, "Foo.sol", "Foo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	line, col, ok := sm.Location(2)
	if !ok {
		t.Fatalf("expected pc 2 to resolve")
	}
	if line != 2 {
		t.Fatalf("line = %d, want 2", line)
	}
	if col <= 0 {
		t.Fatalf("column = %d, want positive", col)
	}
}

func TestLocationMissingPCReturnsFalse(t *testing.T) {
	compilerPath, sourcePath := writeFixtures(t)

	sm, err := Load(compilerPath, sourcePath, "Foo.sol", "Foo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, _, ok := sm.Location(99); ok {
		t.Fatalf("expected unmapped pc to report ok=false")
	}
}
