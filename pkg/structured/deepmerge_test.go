package structured

import (
	"reflect"
	"testing"
)

func TestDeepMergeObjectsKeyWise(t *testing.T) {
	prev := map[string]interface{}{"a": float64(1)}
	next := map[string]interface{}{"b": []interface{}{float64(1), float64(2)}}
	got := DeepMerge(prev, next)
	want := map[string]interface{}{
		"a": float64(1),
		"b": []interface{}{float64(1), float64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDeepMergeArraysAreReplacedNotConcatenated(t *testing.T) {
	prev := map[string]interface{}{"items": []interface{}{float64(1), float64(2)}}
	next := map[string]interface{}{"items": []interface{}{float64(1), float64(2), float64(3)}}
	got := DeepMerge(prev, next).(map[string]interface{})
	items := got["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("expected replaced array of length 3, got %v", items)
	}
}

func TestDeepMergePrimitivesOverwritten(t *testing.T) {
	got := DeepMerge(float64(1), float64(2))
	if got != float64(2) {
		t.Fatalf("expected 2, got %v", got)
	}
}

func TestDeepMergeNestedObjects(t *testing.T) {
	prev := map[string]interface{}{
		"user": map[string]interface{}{"name": "Jo"},
	}
	next := map[string]interface{}{
		"user": map[string]interface{}{"age": float64(30)},
	}
	got := DeepMerge(prev, next).(map[string]interface{})
	user := got["user"].(map[string]interface{})
	if user["name"] != "Jo" || user["age"] != float64(30) {
		t.Fatalf("expected merged nested object, got %v", user)
	}
}

func TestDeepMergeSequentialProgression(t *testing.T) {
	steps := []string{`{"a":1,`, `"b":[1,2`, `,3]}`}
	var buf string
	var merged interface{}
	results := []interface{}{}
	for _, s := range steps {
		buf += s
		r := ParsePartialJSON(buf)
		if r.State != ParseSuccessful && r.State != ParseRepaired {
			continue
		}
		merged = DeepMerge(merged, r.Value)
		results = append(results, merged)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 progressive merges, got %d", len(results))
	}
	final := results[2].(map[string]interface{})
	if final["a"] != float64(1) {
		t.Errorf("expected a=1, got %v", final["a"])
	}
	arr := final["b"].([]interface{})
	if len(arr) != 3 {
		t.Errorf("expected b to have 3 elements, got %v", arr)
	}
}
