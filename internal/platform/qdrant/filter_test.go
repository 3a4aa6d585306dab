package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterMapScalarAndIn(t *testing.T) {
	filter := map[string]any{
		"owner_id": "user-1",
		"voice_clone_id": map[string]any{
			"$in": []any{"clone-1", "clone-2"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	ownerCond := findConditionByKey(got.Must, "owner_id")
	if ownerCond == nil {
		t.Fatalf("missing owner_id condition")
	}
	ownerMatch, ok := ownerCond["match"].(map[string]any)
	if !ok || ownerMatch["value"] != "user-1" {
		t.Fatalf("owner_id match: got=%v", ownerCond["match"])
	}

	cloneCond := findConditionByKey(got.Must, "voice_clone_id")
	if cloneCond == nil {
		t.Fatalf("missing voice_clone_id condition")
	}
	cloneMatch, ok := cloneCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("voice_clone_id match type: got=%T", cloneCond["match"])
	}
	anyVals, ok := cloneMatch["any"].([]any)
	if !ok {
		t.Fatalf("voice_clone_id any type: got=%T", cloneMatch["any"])
	}
	if len(anyVals) != 2 || anyVals[0] != "clone-1" || anyVals[1] != "clone-2" {
		t.Fatalf("voice_clone_id any values: got=%v", anyVals)
	}
}

func TestTranslateFilterMapNeGoesToMustNot(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"language": map[string]any{"$ne": "en"},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 0 {
		t.Fatalf("must length: want=0 got=%d", len(got.Must))
	}
	if len(got.MustNot) != 1 {
		t.Fatalf("must_not length: want=1 got=%d", len(got.MustNot))
	}
	cond := findConditionByKey(got.MustNot, "language")
	if cond == nil {
		t.Fatalf("missing language must_not condition")
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != "en" {
		t.Fatalf("language match: got=%v", cond["match"])
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"quality": map[string]any{
			"$gt": 0.5,
		},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorUnsupportedQuery {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedQuery, oe.Code)
	}
}

func TestTranslateFilterMapEmptyIn(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"voice_clone_id": map[string]any{"$in": []any{}},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, oe.Code)
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
