package script

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lampd/internal/color"
)

// setTimeout bounds one lamp.set call.
const setTimeout = 5 * time.Second

func (r *Runtime) lampLoader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(r.lampSet))
	L.SetField(mod, "parse", L.NewFunction(lampParse))

	L.Push(mod)
	return 1
}

// lamp.set("#rrggbb" | "r,g,b") applies a color as if the user picked it.
// It blocks the script until the edit is applied, so calls land in order,
// and returns true, or false and an error message.
func (r *Runtime) lampSet(L *lua.LState) int {
	raw := L.CheckString(1)
	c, err := parseAny(raw)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	if r.setColor == nil {
		L.RaiseError("lamp.set is not available")
		return 0
	}

	parent := L.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, setTimeout)
	defer cancel()

	if err := r.setColor(ctx, c); err != nil {
		log.Warn().Err(err).Str("source", "lua").Str("color", c.Hex()).Msg("lamp.set failed")
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// lamp.parse(s) returns a color table, or nil and an error message.
func lampParse(L *lua.LState) int {
	c, err := parseAny(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(colorTable(L, c))
	return 1
}

func parseAny(s string) (color.Color, error) {
	var c color.Color
	err := c.UnmarshalText([]byte(s))
	return c, err
}
