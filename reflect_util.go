package aio

import "reflect"

// reflectFnPointer gives callback identity comparability: AddCallback /
// RemoveCallback identify a registration by (function pointer, user data),
// as required by the Future contract.
func reflectFnPointer(fn interface{}) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}
