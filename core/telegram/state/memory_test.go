package state

import (
	"sync"
	"testing"
)

func TestSetAndGetState(t *testing.T) {
	m := NewMemoryManager()
	if got := m.GetState(1); got != StateIdle {
		t.Fatalf("fresh user state = %q, want idle", got)
	}
	m.SetState(1, State("adding_task:title"))
	if got := m.GetState(1); got != State("adding_task:title") {
		t.Errorf("state = %q", got)
	}
	if !m.InProgress(1) {
		t.Error("InProgress = false with active state")
	}
	m.ClearState(1)
	if m.InProgress(1) {
		t.Error("InProgress = true after ClearState")
	}
}

func TestTempTypedAccessors(t *testing.T) {
	m := NewMemoryManager()
	m.SetTemp(5, "group_id", int64(42))
	m.SetTemp(5, "title", "essay")
	m.SetTemp(5, "for_group", true)

	if v, ok := m.GetTempInt64(5, "group_id"); !ok || v != 42 {
		t.Errorf("GetTempInt64 = %d, %v", v, ok)
	}
	if v, ok := m.GetTempString(5, "title"); !ok || v != "essay" {
		t.Errorf("GetTempString = %q, %v", v, ok)
	}
	if v, ok := m.GetTempBool(5, "for_group"); !ok || !v {
		t.Errorf("GetTempBool = %v, %v", v, ok)
	}

	// Wrong type reads miss instead of panicking.
	if _, ok := m.GetTempInt64(5, "title"); ok {
		t.Error("GetTempInt64 on string value should miss")
	}
	if _, ok := m.GetTempString(5, "group_id"); ok {
		t.Error("GetTempString on int64 value should miss")
	}
}

func TestMutateAdvancesStepAndDataTogether(t *testing.T) {
	m := NewMemoryManager()
	m.Mutate(7, func(s *Session) {
		s.State = State("adding_group:name")
		s.TempData["group_name"] = "CS101"
	})
	if got := m.GetState(7); got != State("adding_group:name") {
		t.Errorf("state = %q", got)
	}
	if v, ok := m.GetTempString(7, "group_name"); !ok || v != "CS101" {
		t.Errorf("temp = %q, %v", v, ok)
	}
}

func TestMutateConcurrent(t *testing.T) {
	m := NewMemoryManager()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Mutate(9, func(s *Session) {
				n, _ := s.TempData["n"].(int)
				s.TempData["n"] = n + 1
			})
		}()
	}
	wg.Wait()
	v, _ := m.Get(9).TempData["n"].(int)
	if v != 100 {
		t.Errorf("counter = %d, want 100", v)
	}
}

func TestClearRemovesSession(t *testing.T) {
	m := NewMemoryManager()
	m.SetState(3, State("sending_notification:message"))
	m.SetTemp(3, "group_id", int64(1))
	m.Clear(3)
	if m.InProgress(3) {
		t.Error("InProgress after Clear")
	}
	if _, ok := m.GetTemp(3, "group_id"); ok {
		t.Error("temp survived Clear")
	}
}
