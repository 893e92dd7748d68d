// Package sourcemap annotates program counters with their originating
// (line, column, source_code) when a solc standard-JSON compiler output
// is supplied, per spec.md 6's optional finding annotation. Grounded on
// original_source/fuzzer/utils/source_map.py's SourceMap class.
package sourcemap

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethpandaops/weevil/internal/bytecode"
)

// position is one entry of a legacyAssembly `.code`/`.data` listing: a
// half-open [begin, end) byte range into the Solidity source, or a tag
// pseudo-instruction carrying no source range.
type position struct {
	Begin int    `json:"begin"`
	End   int    `json:"end"`
	Name  string `json:"name"`
}

type compilerOutput struct {
	Contracts map[string]map[string]struct {
		EVM struct {
			LegacyAssembly json.RawMessage `json:"legacyAssembly"`
			DeployedBytecode struct {
				Object string `json:"object"`
			} `json:"deployedBytecode"`
		} `json:"evm"`
	} `json:"contracts"`
}

// SourceMap resolves a deployed contract's program counters back to the
// Solidity source range that generated them.
type SourceMap struct {
	source    string
	lineStart []int // byte offset of the first character of each line

	positions map[uint64]position // pc -> source range, sparse
}

// Load reads a solc standard-JSON compiler output file at compilerJSONPath
// and a source file at sourcePath, and builds the pc->position table for
// contractName within file (solc's "file:Contract" addressing, matching
// source_map.py's cname.split(":")).
func Load(compilerJSONPath, sourcePath, file, contractName string) (*SourceMap, error) {
	raw, err := os.ReadFile(compilerJSONPath)
	if err != nil {
		return nil, fmt.Errorf("reading compiler output: %w", err)
	}

	var out compilerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing compiler output: %w", err)
	}

	contracts, ok := out.Contracts[file]
	if !ok {
		return nil, fmt.Errorf("no contracts compiled from %s in compiler output", file)
	}

	entry, ok := contracts[contractName]
	if !ok {
		return nil, fmt.Errorf("contract %s not found in %s", contractName, file)
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	positions, err := flattenAssembly(entry.EVM.LegacyAssembly)
	if err != nil {
		return nil, fmt.Errorf("parsing legacyAssembly: %w", err)
	}

	deployed, err := decodeHex(entry.EVM.DeployedBytecode.Object)
	if err != nil {
		return nil, fmt.Errorf("decoding deployed bytecode: %w", err)
	}

	sm := &SourceMap{
		source:    string(source),
		positions: zipPositions(positions, deployed),
	}
	sm.lineStart = lineStarts(sm.source)

	return sm, nil
}

// flattenAssembly walks `.code` then recurses into `.data` entries in
// lexicographic (string) key order, matching source_map.py's _get_positions
// loop over asm['.data']['0']['.code'] chained with a nil separator.
func flattenAssembly(raw json.RawMessage) ([]*position, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var node struct {
		Code []position                 `json:".code"`
		Data map[string]json.RawMessage `json:".data"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}

	out := make([]*position, len(node.Code))
	for i := range node.Code {
		p := node.Code[i]
		out[i] = &p
	}

	keys := make([]string, 0, len(node.Data))
	for k := range node.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		out = append(out, nil) // separator, matching the Python's `positions.append(None)`
		child, err := flattenAssembly(node.Data[k])
		if err != nil {
			return nil, err
		}
		out = append(out, child...)
	}

	return out, nil
}

// zipPositions walks the deployed bytecode's own instruction pcs in
// order and assigns each non-tag position entry to the next one, exactly
// matching _get_instr_positions' parallel `j` index.
func zipPositions(positions []*position, deployed []byte) map[uint64]position {
	instrs := bytecode.Decode(deployed)

	out := make(map[uint64]position)
	j := 0
	for _, p := range positions {
		if j >= len(instrs) {
			break
		}
		if p == nil || p.Name == "tag" {
			continue
		}
		out[instrs[j].PC] = *p
		j++
	}
	return out
}

// Location returns the 1-indexed (line, column) the pc's source range
// begins at, and false if pc has no recorded mapping.
func (sm *SourceMap) Location(pc uint64) (line, column int, ok bool) {
	pos, found := sm.positions[pc]
	if !found || pos.Begin < 0 {
		return 0, 0, false
	}

	line = sort.SearchInts(sm.lineStart, pos.Begin+1) - 1
	if line < 0 {
		line = 0
	}

	column = pos.Begin - sm.lineStart[line]

	return line + 1, column + 1, true
}

// SourceCode returns the source snippet pc's range covers, or "" if pc has
// no mapping or the range is empty, matching get_buggy_line.
func (sm *SourceMap) SourceCode(pc uint64) string {
	pos, ok := sm.positions[pc]
	if !ok || pos.Begin < 0 || pos.End > len(sm.source) || pos.End < pos.Begin {
		return ""
	}
	return sm.source[pos.Begin:pos.End]
}

func lineStarts(src string) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
