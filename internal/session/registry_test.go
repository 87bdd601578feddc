package session

import (
	"testing"

	"browsercore/internal/coretypes"
)

func TestRegisterBatchBumpsGeneration(t *testing.T) {
	r := NewElementRegistry()
	g0 := r.GenerationID()

	r.RegisterBatch([]coretypes.ElementDescriptor{
		{Ref: "btn1", Tag: "button"},
		{Ref: "input1", Tag: "input"},
	})

	if r.GenerationID() != g0+1 {
		t.Fatalf("expected generation to increment once per batch")
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 registered elements, got %d", r.Count())
	}
	if got := r.Get("btn1"); got == nil || got.Tag != "button" {
		t.Fatalf("expected btn1 descriptor, got %v", got)
	}
}

func TestClearResetsRegistryAndBumpsGeneration(t *testing.T) {
	r := NewElementRegistry()
	r.Register(&coretypes.ElementDescriptor{Ref: "a"})
	g0 := r.GenerationID()

	r.Clear()

	if r.Count() != 0 {
		t.Fatal("expected registry to be empty after Clear")
	}
	if r.GenerationID() != g0+1 {
		t.Fatal("expected generation to increment on Clear")
	}
	if r.Get("a") != nil {
		t.Fatal("expected stale ref to be gone after Clear")
	}
}
