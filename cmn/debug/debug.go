// Package debug provides lightweight assertions, switched on and off at
// runtime through Enabled.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package debug

import "fmt"

// Enabled toggles assertion checking at runtime. Unlike the teacher's own
// `cmn/debug` package, no build tag is involved: it is a plain var, so
// tests can turn assertions on or off directly.
var Enabled = true

func Assert(cond bool, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprint(append([]any{"assertion failed: "}, args...)...))
}

func Assertf(cond bool, format string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf("assertion failed: "+format, args...))
}

func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(err)
}

// Func runs f only when assertions are enabled; used to guard expensive
// invariant checks that would otherwise run unconditionally in hot paths.
func Func(f func()) {
	if Enabled {
		f()
	}
}
