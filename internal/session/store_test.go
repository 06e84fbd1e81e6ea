package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStore_AddGet(t *testing.T) {
	store := NewStore()
	s := New(Config{Role: "retail"})

	if err := store.Add(s); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add(s); !errors.Is(err, ErrExists) {
		t.Errorf("second Add() error = %v, want ErrExists", err)
	}

	got, err := store.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != s.ID || got.Role != "retail" {
		t.Errorf("Get() = %+v", got)
	}
	if got == s {
		t.Error("Get() should return a snapshot, not the live session")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	err := store.Update("nope", func(*Session) error { return nil })
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Update() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore()
	s := New(Config{})
	_ = store.Add(s)

	err := store.Update(s.ID, func(sess *Session) error {
		sess.Finished = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := store.Get(s.ID)
	if !got.Finished {
		t.Error("Update() change not visible")
	}

	sentinel := errors.New("stop")
	if err := store.Update(s.ID, func(*Session) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Update() error = %v, want fn error", err)
	}
}

func TestStore_UpdateSerialisesPerSession(t *testing.T) {
	store := NewStore()
	s := New(Config{})
	_ = store.Add(s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(s.ID, func(sess *Session) error {
				sess.appendQuestion("q")
				a := "a"
				sess.QuestionsAsked[len(sess.QuestionsAsked)-1].CandidateAnswer = &a
				sess.WaitingForAnswer = false
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(s.ID)
	if len(got.QuestionsAsked) != 50 {
		t.Errorf("len(QuestionsAsked) = %d, want 50", len(got.QuestionsAsked))
	}
}

func TestStore_ListAndLen(t *testing.T) {
	store := NewStore()
	first := New(Config{Role: "first"})
	second := New(Config{Role: "second"})
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	_ = store.Add(second)
	_ = store.Add(first)

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d", len(list))
	}
	if list[0].Role != "first" || list[1].Role != "second" {
		t.Errorf("List() order = %s, %s; want oldest first", list[0].Role, list[1].Role)
	}
}
