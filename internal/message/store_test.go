package message

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sereno-app/sereno/internal/chaterr"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func remote(id, author, body string, at time.Time) Message {
	return Message{ID: id, RoomID: "r1", AuthorID: author, Body: body, Origin: Remote, CreatedAt: at}
}

func local(id, body string) Message {
	return Message{ID: id, RoomID: "r1", AuthorID: "me", Body: body, Origin: Local, Status: Pending, CreatedAt: t0}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := NewStore(0)
	for i := range 5 {
		res := s.Append(local(fmt.Sprintf("m%d", i), fmt.Sprintf("body %d", i)))
		if !res.Accepted {
			t.Fatalf("append m%d rejected: %s", i, res.Reason)
		}
	}
	all := s.All()
	if len(all) != 5 || s.Len() != 5 {
		t.Fatalf("len = %d/%d, want 5", len(all), s.Len())
	}
	for i, m := range all {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("all[%d] = %s", i, m.ID)
		}
	}
}

func TestAppendDuplicateID(t *testing.T) {
	s := NewStore(0)
	s.Append(local("m1", "hello"))
	res := s.Append(local("m1", "other"))
	if res.Accepted || res.Reason != ReasonDuplicateID {
		t.Fatalf("res = %+v, want duplicate_id rejection", res)
	}
	if m, _ := s.Get("m1"); m.Body != "hello" {
		t.Errorf("body mutated to %q", m.Body)
	}
}

func TestAppendContentDedupe(t *testing.T) {
	tests := []struct {
		name   string
		second Message
		want   bool
	}{
		{"same author and body within window", remote("b", "u1", "hi", t0.Add(500*time.Millisecond)), false},
		{"earlier within window", remote("b", "u1", "hi", t0.Add(-900*time.Millisecond)), false},
		{"different author", remote("b", "u2", "hi", t0.Add(500*time.Millisecond)), true},
		{"different body", remote("b", "u1", "hey", t0.Add(500*time.Millisecond)), true},
		{"outside window", remote("b", "u1", "hi", t0.Add(1500*time.Millisecond)), true},
		{"local message is never content-deduped", Message{ID: "b", AuthorID: "u1", Body: "hi", Origin: Local, Status: Pending, CreatedAt: t0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(time.Second)
			s.Append(remote("a", "u1", "hi", t0))
			res := s.Append(tt.second)
			if res.Accepted != tt.want {
				t.Errorf("accepted = %v, want %v (%s)", res.Accepted, tt.want, res.Reason)
			}
			wantLen := 1
			if tt.want {
				wantLen = 2
			}
			if s.Len() != wantLen {
				t.Errorf("len = %d, want %d", s.Len(), wantLen)
			}
		})
	}
}

func TestAppendRemoteWithoutID(t *testing.T) {
	s := NewStore(time.Nanosecond)
	a := remote("", "u1", "hi", t0)
	if !s.Append(a).Accepted {
		t.Fatal("first append rejected")
	}
	res := s.Append(a)
	if res.Accepted || res.Reason != ReasonDuplicateID {
		t.Fatalf("exact redelivery = %+v, want duplicate_id", res)
	}
	all := s.All()
	if all[0].ID == "" {
		t.Error("derived id not assigned")
	}
	if all[0].Status != Delivered {
		t.Errorf("remote status = %s, want delivered", all[0].Status)
	}
}

func TestAppendLocalWithoutID(t *testing.T) {
	s := NewStore(0)
	res := s.Append(local("", "hi"))
	if res.Accepted || res.Reason != ReasonInvalid {
		t.Errorf("res = %+v, want invalid", res)
	}
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{Pending, Sent, true},
		{Pending, Delivered, true},
		{Pending, Failed, true},
		{Sent, Delivered, true},
		{Sent, Failed, true},
		{Sent, Pending, false},
		{Delivered, Pending, false},
		{Delivered, Failed, false},
		{Failed, Pending, false},
		{Failed, Sent, false},
		{Failed, Delivered, false},
		{Pending, Pending, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			s := NewStore(0)
			m := local("m1", "hi")
			m.Status = tt.from
			s.Append(m)

			got, err := s.UpdateStatus("m1", tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("UpdateStatus: %v", err)
				}
				if got.Status != tt.to {
					t.Errorf("status = %s, want %s", got.Status, tt.to)
				}
				return
			}
			if !errors.Is(err, chaterr.ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if cur, _ := s.Get("m1"); cur.Status != tt.from {
				t.Errorf("status changed to %s on rejected update", cur.Status)
			}
		})
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := NewStore(0)
	if _, err := s.UpdateStatus("nope", Sent); !errors.Is(err, chaterr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFailAndRequeue(t *testing.T) {
	s := NewStore(0)
	s.Append(local("m1", "hi"))

	if _, err := s.Requeue("m1"); !errors.Is(err, chaterr.ErrNotEligible) {
		t.Fatalf("requeue pending = %v, want ErrNotEligible", err)
	}

	m, err := s.Fail("m1", "timeout")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if m.Status != Failed || m.FailReason != "timeout" {
		t.Errorf("after fail = %+v", m)
	}

	m, err = s.Requeue("m1")
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if m.Status != Pending || m.FailReason != "" {
		t.Errorf("after requeue = %+v", m)
	}
}

func TestAllIsSnapshot(t *testing.T) {
	s := NewStore(0)
	s.Append(local("m1", "hi"))

	first := s.All()
	first[0].Body = "changed"
	second := s.All()
	if second[0].Body != "hi" {
		t.Error("All returned shared storage")
	}
	if len(s.All()) != len(second) {
		t.Error("repeated All differs")
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := NewStore(0)
	s.Append(local("m1", "a"))
	s.Append(local("m2", "b"))
	s.Append(local("m3", "c"))

	if !s.Remove("m2") {
		t.Fatal("Remove(m2) = false")
	}
	if s.Remove("m2") {
		t.Error("second Remove(m2) = true")
	}
	all := s.All()
	if len(all) != 2 || all[0].ID != "m1" || all[1].ID != "m3" {
		t.Errorf("after remove = %v", all)
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("len after clear = %d", s.Len())
	}
	if !s.Append(local("m1", "a")).Accepted {
		t.Error("id not reusable after clear")
	}
}

func TestDerivedIDStable(t *testing.T) {
	a := DerivedID("u1", "hi", t0)
	if a != DerivedID("u1", "hi", t0) {
		t.Error("derived id not deterministic")
	}
	if a == DerivedID("u1", "hi", t0.Add(time.Millisecond)) {
		t.Error("derived id ignores timestamp")
	}
	if a == DerivedID("u1h", "i", t0) {
		t.Error("derived id ambiguous across field boundary")
	}
}
