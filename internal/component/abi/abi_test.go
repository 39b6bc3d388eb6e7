package abi

import (
	"encoding/json"
	"testing"
)

func TestParseKnownVersions(t *testing.T) {
	for _, raw := range []string{"0.4", "0.5", "0.6"} {
		v, ok := Parse(raw)
		if !ok || string(v) != raw {
			t.Fatalf("Parse(%q) = %q, %v", raw, v, ok)
		}
	}
}

func TestParseUnknownVersion(t *testing.T) {
	if _, ok := Parse("0.7"); ok {
		t.Fatal("expected unknown abi version to be rejected")
	}
}

func TestRequiresDescribe(t *testing.T) {
	if V04.RequiresDescribe() || V05.RequiresDescribe() {
		t.Fatal("only 0.6 requires the describe export")
	}
	if !V06.RequiresDescribe() {
		t.Fatal("0.6 must require the describe export")
	}
}

func TestInvokeResultDecodeOk(t *testing.T) {
	raw := []byte(`{"ok":{"status":"done"}}`)
	var result InvokeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.Ok == nil || result.Err != nil {
		t.Fatalf("got %+v", result)
	}
}

func TestInvokeResultDecodeErr(t *testing.T) {
	raw := []byte(`{"err":{"code":"bad_input","message":"nope","retryable":false}}`)
	var result InvokeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.Err == nil || result.Err.Code != "bad_input" {
		t.Fatalf("got %+v", result)
	}
}
