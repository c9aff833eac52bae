package result

import "reflect"

// cloneValue deep-copies maps and slices nested anywhere in v. Other values
// are returned as they are.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return cloneMap(t)
	case []map[string]any:
		return cloneRows(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		if t == nil {
			return t
		}
		return append([]string{}, t...)
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

// cloneReflect handles typed maps and slices such as []float64 or
// map[string]int that the analyzers put into sections.
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	}
	return rv
}

func cloneElem(v reflect.Value, elem reflect.Type) reflect.Value {
	if elem.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(elem)
		}
		return reflect.ValueOf(cloneValue(v.Interface()))
	}
	return cloneReflect(v)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = cloneMap(r)
	}
	return out
}

// clone detaches the maps and field list from the caller's copy.
func (r MysqlRef) clone() MysqlRef {
	r.PK = cloneMap(r.PK)
	r.Locator = cloneMap(r.Locator)
	if r.Fields != nil {
		r.Fields = append([]string{}, r.Fields...)
	}
	return r
}

func (r RagRef) clone() RagRef {
	r.DocumentID = cloneValue(r.DocumentID)
	r.ChunkID = cloneValue(r.ChunkID)
	return r
}

func cloneRef(ref Ref) Ref {
	switch r := ref.(type) {
	case MysqlRef:
		return r.clone()
	case RagRef:
		return r.clone()
	}
	return ref
}
