package inmem

import (
	"fmt"
	"reflect"
)

// copyViaReflect assigns src into the value dest points to, when their
// (possibly differing but assignable) types allow it. This stands in for
// the serialize/deserialize round trip a real durable engine performs
// between workflow and activity boundaries (§4.5, "Non-serializable
// boundary") — in-memory, no bytes are actually produced, but the
// same pointer-target assignment contract is preserved.
func copyViaReflect(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("inmem: result must be a non-nil pointer, got %T", dest)
	}
	elem := dv.Elem()
	if src == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(elem.Type()) {
		elem.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(sv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("inmem: cannot assign result of type %T into %s", src, elem.Type())
}
