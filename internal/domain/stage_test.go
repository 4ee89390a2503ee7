package domain

import "testing"

func TestStages_OrderAndNext(t *testing.T) {
	if FirstStage() != StageIntro {
		t.Fatalf("first stage = %q; want intro", FirstStage())
	}
	for i, s := range Stages {
		if s.Index() != i {
			t.Fatalf("%q.Index() = %d; want %d", s, s.Index(), i)
		}
		next, ok := s.Next()
		if i == len(Stages)-1 {
			if ok || !s.Terminal() {
				t.Fatalf("last stage must be terminal, got next=%q ok=%v", next, ok)
			}
			continue
		}
		if !ok || next != Stages[i+1] {
			t.Fatalf("%q.Next() = %q,%v; want %q", s, next, ok, Stages[i+1])
		}
	}
}

func TestStage_UnknownAndAtLeast(t *testing.T) {
	if Stage("vip").Valid() {
		t.Fatalf("unknown stage should be invalid")
	}
	if _, ok := Stage("vip").Next(); ok {
		t.Fatalf("unknown stage must not have a successor")
	}
	if _, ok := ParseStage("trusted"); !ok {
		t.Fatalf("ParseStage(trusted) should succeed")
	}
	if !StageTrusted.AtLeast(StageEngaged) || StageEngaged.AtLeast(StageTrusted) {
		t.Fatalf("AtLeast ordering broken")
	}
	if Stage("nope").AtLeast(StageIntro) {
		t.Fatalf("unknown stage must not satisfy AtLeast")
	}
}
