package cascade

import "reflect"

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
