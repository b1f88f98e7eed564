package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"

	"ecotrace-api/internal/model"
)

// Mutator is a field value that transforms the stored value instead of
// replacing it. Mutators are applied inside the write, so they are atomic
// with the rest of the document.
type Mutator interface {
	apply(current interface{}, exists bool) (value interface{}, keep bool, err error)
}

type increment struct{ delta float64 }

// Increment adds delta to a numeric field. Missing fields count as zero.
func Increment(delta int) Mutator { return increment{delta: float64(delta)} }

func (m increment) apply(current interface{}, exists bool) (interface{}, bool, error) {
	if !exists || current == nil {
		return m.delta, true, nil
	}
	n, ok := current.(float64)
	if !ok {
		return nil, false, fmt.Errorf("cannot increment non-numeric value %T", current)
	}
	return n + m.delta, true, nil
}

type arrayUnion struct{ values []interface{} }

// ArrayUnion adds each value to an array field unless already present.
func ArrayUnion(values ...interface{}) Mutator { return arrayUnion{values: normalizeAll(values)} }

func (m arrayUnion) apply(current interface{}, exists bool) (interface{}, bool, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, false, err
	}
	for _, v := range m.values {
		if indexOf(arr, v) < 0 {
			arr = append(arr, v)
		}
	}
	return arr, true, nil
}

type arrayRemove struct{ values []interface{} }

// ArrayRemove removes every occurrence of each value from an array field.
func ArrayRemove(values ...interface{}) Mutator { return arrayRemove{values: normalizeAll(values)} }

func (m arrayRemove) apply(current interface{}, exists bool) (interface{}, bool, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, false, err
	}
	out := make([]interface{}, 0, len(arr))
	for _, v := range arr {
		if indexOf(m.values, v) < 0 {
			out = append(out, v)
		}
	}
	return out, true, nil
}

type deleteField struct{}

// DeleteField removes the field from the document.
func DeleteField() Mutator { return deleteField{} }

func (deleteField) apply(interface{}, bool) (interface{}, bool, error) { return nil, false, nil }

func asArray(current interface{}, exists bool) ([]interface{}, error) {
	if !exists || current == nil {
		return []interface{}{}, nil
	}
	arr, ok := current.([]interface{})
	if !ok {
		return nil, fmt.Errorf("cannot apply array mutation to %T", current)
	}
	out := make([]interface{}, len(arr))
	copy(out, arr)
	return out, nil
}

func indexOf(arr []interface{}, v interface{}) int {
	for i, e := range arr {
		if reflect.DeepEqual(e, v) {
			return i
		}
	}
	return -1
}

// applyFields computes the document stored after writing fields over base.
// base must already be in normalized JSON form and is not modified.
func applyFields(base Document, fields Document, merge bool) (Document, error) {
	out := Document{}
	if merge {
		for k, v := range base {
			out[k] = v
		}
	}
	for k, v := range fields {
		switch val := v.(type) {
		case Mutator:
			current, exists := out[k]
			next, keep, err := val.apply(current, exists)
			if err != nil {
				return nil, model.Wrap(model.KindInvalidArgument, err, fmt.Sprintf("field %q", k))
			}
			if keep {
				out[k] = next
			} else {
				delete(out, k)
			}
		default:
			nv, err := normalize(v)
			if err != nil {
				return nil, model.Wrap(model.KindInvalidArgument, err, fmt.Sprintf("field %q", k))
			}
			if merge {
				if nested, ok := nv.(map[string]interface{}); ok {
					if existing, ok := out[k].(map[string]interface{}); ok {
						merged, err := applyFields(Document(existing), Document(nested), true)
						if err != nil {
							return nil, err
						}
						nv = map[string]interface{}(merged)
					}
				}
			}
			out[k] = nv
		}
	}
	return out, nil
}

// normalize converts a Go value to its JSON-decoded form so stored values
// compare equal regardless of the type they were written with.
func normalize(v interface{}) (interface{}, error) {
	if doc, ok := v.(Document); ok {
		v = map[string]interface{}(doc)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeAll(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		nv, err := normalize(v)
		if err != nil {
			nv = v
		}
		out = append(out, nv)
	}
	return out
}

func encodeDocument(doc Document) ([]byte, error) {
	return json.Marshal(map[string]interface{}(doc))
}

func decodeDocument(path string, data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.Wrap(model.KindDataCorruption, err, fmt.Sprintf("document %s is not valid JSON", path))
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Encode converts a struct into a Document using its JSON tags.
func Encode(v interface{}) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc. A document that does not fit v's shape is reported
// as DataCorruption.
func Decode(path string, doc Document, v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(doc))
	if err != nil {
		return model.Wrap(model.KindDataCorruption, err, fmt.Sprintf("document %s cannot be encoded", path))
	}
	if err := json.Unmarshal(b, v); err != nil {
		return model.Wrap(model.KindDataCorruption, err, fmt.Sprintf("document %s is malformed", path))
	}
	return nil
}
