package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func named(name string, hits *[]string) tele.HandlerFunc {
	return func(c tele.Context) error {
		*hits = append(*hits, name)
		return nil
	}
}

func TestResolveCallbackExactBeforePrefix(t *testing.T) {
	var hits []string
	reg := NewRegistry()
	if err := reg.RegisterCallback("add_group", named("exact", &hits)); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallbackPrefix("add_", named("prefix", &hits)); err != nil {
		t.Fatal(err)
	}

	key, h, ok := reg.ResolveCallback("add_group")
	if !ok {
		t.Fatal("expected match")
	}
	if key != "add_group" {
		t.Errorf("key = %q, want exact key", key)
	}
	_ = h(nil)
	if len(hits) != 1 || hits[0] != "exact" {
		t.Errorf("resolved %v, want exact handler", hits)
	}
}

func TestResolveCallbackPrefixOrder(t *testing.T) {
	var hits []string
	reg := NewRegistry()
	// Deliberately overlapping prefixes. First registered must win.
	if err := reg.RegisterCallbackPrefix("task_for_", named("task_for", &hits)); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallbackPrefix("task_", named("task", &hits)); err != nil {
		t.Fatal(err)
	}

	key, h, ok := reg.ResolveCallback("task_for_group_1_2")
	if !ok {
		t.Fatal("expected match")
	}
	if key != "task_for_" {
		t.Errorf("key = %q, want task_for_", key)
	}
	_ = h(nil)
	if len(hits) != 1 || hits[0] != "task_for" {
		t.Errorf("resolved %v, want task_for handler", hits)
	}

	hits = nil
	key, h, ok = reg.ResolveCallback("task_details_9")
	if !ok {
		t.Fatal("expected match")
	}
	if key != "task_" {
		t.Errorf("key = %q, want task_", key)
	}
	_ = h(nil)
	if len(hits) != 1 || hits[0] != "task" {
		t.Errorf("resolved %v, want task handler", hits)
	}
}

func TestResolveCallbackMiss(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallbackPrefix("select_group_", named("x", new([]string))); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := reg.ResolveCallback("unrelated_7"); ok {
		t.Error("expected no match")
	}
}

func TestRegisterCallbackPrefixDuplicate(t *testing.T) {
	reg := NewRegistry()
	h := named("x", new([]string))
	if err := reg.RegisterCallbackPrefix("toggle_", h); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallbackPrefix("toggle_", h); err == nil {
		t.Error("duplicate prefix registration must fail")
	}
}
