package model

import "reflect"

// ApplyPatch merges a TicketPatch into a ticket in place. Only non-nil patch
// fields are applied; nested stage patches recurse so that setting, say,
// AIProcessing.Status leaves the stage's other fields untouched.
func ApplyPatch(t *Ticket, p *TicketPatch) {
	if t == nil || p == nil {
		return
	}
	mergeStruct(reflect.ValueOf(t).Elem(), reflect.ValueOf(p).Elem())
}

// mergeStruct walks the patch struct field by field. Each patch field is a
// pointer; a nil pointer means "leave alone". For a pointer to a nested
// *Patch struct the merge recurses into the matching destination struct, for
// anything else the pointed-to value is assigned wholesale.
func mergeStruct(dst, patch reflect.Value) {
	pt := patch.Type()
	for i := 0; i < pt.NumField(); i++ {
		pf := patch.Field(i)
		if pf.Kind() != reflect.Pointer || pf.IsNil() {
			continue
		}
		df := dst.FieldByName(pt.Field(i).Name)
		if !df.IsValid() || !df.CanSet() {
			continue
		}
		elem := pf.Type().Elem()
		switch {
		case pf.Type() == df.Type():
			// Destination is itself a pointer of the same type.
			df.Set(pf)
		case elem == df.Type():
			df.Set(pf.Elem())
		case elem.Kind() == reflect.Struct && df.Kind() == reflect.Struct:
			// Nested patch struct (e.g. *ExtractionPatch onto ExtractionResult).
			mergeStruct(df, pf.Elem())
		case elem.Kind() == reflect.Struct && df.Kind() == reflect.Pointer &&
			df.Type().Elem() == elem:
			df.Set(pf)
		}
	}
}
