//go:build !no_automation

package automation

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// registerWifiledModule registers the `wifiled` global table in a Lua state.
func registerWifiledModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return wifiledOn(L, vm)
	}))

	mod.RawSetString("set_power", L.NewFunction(func(L *lua.LState) int {
		return wifiledSetPower(L, e)
	}))

	mod.RawSetString("set_color", L.NewFunction(func(L *lua.LState) int {
		return wifiledSetColor(L, e)
	}))

	mod.RawSetString("set_white", L.NewFunction(func(L *lua.LState) int {
		return wifiledSetWhite(L, e)
	}))

	mod.RawSetString("set_pattern", L.NewFunction(func(L *lua.LState) int {
		return wifiledSetPattern(L, e)
	}))

	mod.RawSetString("get_state", L.NewFunction(func(L *lua.LState) int {
		return wifiledGetState(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return wifiledAfter(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return wifiledLog(L, e)
	}))

	mod.RawSetString("bulbs", L.NewFunction(func(L *lua.LState) int {
		return wifiledBulbs(L, e)
	}))

	L.SetGlobal("wifiled", mod)
}

const maxHandlersPerScript = 100

// commandTimeout bounds every device call issued from Lua.
const commandTimeout = 5 * time.Second

// wifiled.on(type, filter, callback)
func wifiledOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}

	if v := filterTable.RawGetString("ip"); v != lua.LNil {
		h.ip = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// wifiled.set_power(ip_or_name, on)
func wifiledSetPower(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	on := L.CheckBool(2)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.coord.SetPower(ctx, target, on); err != nil {
		e.logger.Error("set power", "err", err, "target", target, "on", on)
	}
	return 0
}

// wifiled.set_color(ip_or_name, r, g, b)
func wifiledSetColor(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	r := clampLevel(L.CheckInt(2))
	g := clampLevel(L.CheckInt(3))
	b := clampLevel(L.CheckInt(4))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.coord.SetColor(ctx, target, r, g, b, true); err != nil {
		e.logger.Error("set color", "err", err, "target", target)
	}
	return 0
}

// wifiled.set_white(ip_or_name, percent)
func wifiledSetWhite(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	pct := L.CheckInt(2)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.coord.SetWarmWhite(ctx, target, pct, true); err != nil {
		e.logger.Error("set white", "err", err, "target", target, "pct", pct)
	}
	return 0
}

// wifiled.set_pattern(ip_or_name, name [, speed])
func wifiledSetPattern(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	name := L.CheckString(2)
	speed := 50
	if L.GetTop() >= 3 {
		speed = L.CheckInt(3)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.coord.SetPattern(ctx, target, name, speed); err != nil {
		e.logger.Error("set pattern", "err", err, "target", target, "pattern", name)
	}
	return 0
}

// wifiled.get_state(ip_or_name) — returns the last recorded snapshot, or nil
func wifiledGetState(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)

	b, err := e.coord.Bulb(target)
	if err != nil || b.LastState == nil {
		L.Push(lua.LNil)
		return 1
	}

	st := b.LastState
	t := L.NewTable()
	t.RawSetString("power", lua.LString(st.Power))
	t.RawSetString("mode", lua.LString(st.Mode))
	t.RawSetString("speed", lua.LNumber(st.Speed))
	t.RawSetString("r", lua.LNumber(st.R))
	t.RawSetString("g", lua.LNumber(st.G))
	t.RawSetString("b", lua.LNumber(st.B))
	t.RawSetString("warm_white_pct", lua.LNumber(st.WarmWhitePct))
	if st.Pattern != "" {
		t.RawSetString("pattern", lua.LString(st.Pattern))
	}
	L.Push(t)
	return 1
}

// wifiled.after(seconds, callback) — delayed execution
func wifiledAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		// Send callback execution to the VM's command channel
		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// wifiled.log(msg)
func wifiledLog(L *lua.LState, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	return 0
}

// wifiled.bulbs() — returns a table of all known bulbs
func wifiledBulbs(L *lua.LState, e *Engine) int {
	bulbs, err := e.coord.Bulbs()
	if err != nil {
		L.Push(L.NewTable())
		return 1
	}

	tbl := L.NewTable()
	for i, b := range bulbs {
		t := L.NewTable()
		t.RawSetString("ip", lua.LString(b.IP))
		t.RawSetString("name", lua.LString(b.DisplayName()))
		t.RawSetString("model", lua.LString(b.Model))
		t.RawSetString("online", lua.LBool(b.Online))
		tbl.RawSetInt(i+1, t)
	}

	L.Push(tbl)
	return 1
}

func clampLevel(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
