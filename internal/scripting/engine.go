// Package scripting wraps a gopher-lua VM that supplies the adversary's
// evaluation policy. Go owns the search mechanics; Lua owns the tunable
// numbers (piece values, mate bias), so the policy can change without a
// rebuild. A missing script falls back to the compiled-in defaults.
package scripting

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EvalPolicy holds the material weights the search scores leaves with.
// MateBias is added to won positions, scaled down by search depth so
// faster mates score higher.
type EvalPolicy struct {
	PieceValues map[byte]int // FEN letter (lowercase) -> centipawns
	KingValue   int
	MateBias    int
}

// DefaultPolicy mirrors the classic material table.
func DefaultPolicy() EvalPolicy {
	return EvalPolicy{
		PieceValues: map[byte]int{
			'p': 100,
			'n': 320,
			'b': 330,
			'r': 500,
			'q': 900,
		},
		KingValue: 20000,
		MateBias:  100000,
	}
}

// Engine wraps a single Lua VM. Single-goroutine access only; the
// policy is extracted once at startup and the VM can then be closed.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads the evaluation script at
// path. A missing file is not an error; Policy then returns defaults.
func NewEngine(path string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if _, err := os.Stat(path); err == nil {
		if err := vm.DoFile(path); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		log.Debug("loaded lua script", zap.String("file", path))
	} else if !os.IsNotExist(err) {
		vm.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return e, nil
}

func (e *Engine) Close() {
	e.vm.Close()
}

// Policy reads the script's piece_values table, king_value, and
// mate_bias globals, falling back to defaults for anything unset.
func (e *Engine) Policy() EvalPolicy {
	p := DefaultPolicy()

	if tbl, ok := e.vm.GetGlobal("piece_values").(*lua.LTable); ok {
		tbl.ForEach(func(k, v lua.LValue) {
			key, kok := k.(lua.LString)
			val, vok := v.(lua.LNumber)
			if !kok || !vok || len(key) != 1 {
				e.log.Warn("ignoring bad piece_values entry", zap.String("key", k.String()))
				return
			}
			p.PieceValues[key.String()[0]] = int(val)
		})
	}
	if v, ok := e.vm.GetGlobal("king_value").(lua.LNumber); ok {
		p.KingValue = int(v)
	}
	if v, ok := e.vm.GetGlobal("mate_bias").(lua.LNumber); ok {
		p.MateBias = int(v)
	}
	return p
}
