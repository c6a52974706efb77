package policy

import (
	"context"
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ExpressionPolicy evaluates an administrator-written Lua predicate. The
// script sees a read-only `request` table and must return a boolean:
//
//	return request.attributes.has_mfa_device == true
//
// Each evaluation runs in a fresh interpreter state, so concurrent
// evaluations never share Lua globals.
type ExpressionPolicy struct {
	Base
	Expression string
}

func (p *ExpressionPolicy) Kind() string { return "expression" }

func (p *ExpressionPolicy) Evaluate(ctx context.Context, req *Request) (Result, error) {
	state := lua.NewState()
	defer state.Close()
	state.SetContext(ctx)

	read := make(map[string]struct{})
	state.SetGlobal("request", requestTable(state, req, read))

	if err := state.DoString(p.Expression); err != nil {
		return Result{}, fmt.Errorf("expression: %w", err)
	}

	passed := lua.LVAsBool(state.Get(-1))
	reason := ""
	if !passed {
		reason = ReasonExpressionDenied
	}

	return Result{Passed: passed, Reason: reason, Cacheable: true, AttributesRead: sortedKeys(read)}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func requestTable(state *lua.LState, req *Request, read map[string]struct{}) *lua.LTable {
	tbl := state.NewTable()
	if req == nil {
		return tbl
	}

	tbl.RawSetString("principal_id", lua.LString(req.Principal.ID))
	tbl.RawSetString("username", lua.LString(req.Principal.Username))
	tbl.RawSetString("active", lua.LBool(req.Principal.Active))
	tbl.RawSetString("client_ip", lua.LString(req.ClientIP))
	tbl.RawSetString("impersonated", lua.LBool(req.Impersonated))

	groups := state.NewTable()
	for i, g := range req.Principal.Groups {
		groups.RawSetInt(i+1, lua.LString(g))
	}
	tbl.RawSetString("groups", groups)

	tbl.RawSetString("attributes", attributeTable(state, req.Attributes, read))

	return tbl
}

// attributeTable exposes the request attributes through an empty proxy
// table whose __index metamethod records every key the script reads. The
// recorded set feeds the resolver's cacheability check. Scripts test
// known keys through indexing; pairs() over the proxy sees no entries.
func attributeTable(state *lua.LState, attrs map[string]any, read map[string]struct{}) *lua.LTable {
	proxy := state.NewTable()
	mt := state.NewTable()
	mt.RawSetString("__index", state.NewFunction(func(l *lua.LState) int {
		key, ok := l.Get(2).(lua.LString)
		if !ok {
			l.Push(lua.LNil)
			return 1
		}
		read[string(key)] = struct{}{}
		v, present := attrs[string(key)]
		if !present {
			l.Push(lua.LNil)
			return 1
		}
		l.Push(luaValue(l, v))
		return 1
	}))
	state.SetMetatable(proxy, mt)
	return proxy
}

func luaValue(state *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		tbl := state.NewTable()
		for i, s := range val {
			tbl.RawSetInt(i+1, lua.LString(s))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
