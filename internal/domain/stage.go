package domain

// Stage is one step in the fixed, totally ordered progression sequence.
type Stage string

const (
	StageIntro      Stage = "intro"
	StageEngaged    Stage = "engaged"
	StageTrusted    Stage = "trusted"
	StagePrivileged Stage = "privileged"
	StageInner      Stage = "inner"
)

// Stages lists every stage in progression order. The first entry is the
// initial stage assigned on a user's first interaction; the last entry is
// terminal.
var Stages = []Stage{StageIntro, StageEngaged, StageTrusted, StagePrivileged, StageInner}

// Index returns the position of s in Stages, or -1 when s is unknown.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Next returns the stage that follows s. ok is false when s is terminal or
// unknown.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Stages) {
		return "", false
	}
	return Stages[i+1], true
}

// Terminal reports whether s is the last stage.
func (s Stage) Terminal() bool { return s.Index() == len(Stages)-1 }

// AtLeast reports whether s is at or beyond other in progression order.
func (s Stage) AtLeast(other Stage) bool {
	i, j := s.Index(), other.Index()
	return i >= 0 && j >= 0 && i >= j
}

// ParseStage converts a raw name into a Stage. ok is false for unknown names.
func ParseStage(raw string) (Stage, bool) {
	s := Stage(raw)
	return s, s.Valid()
}

// FirstStage is the stage assigned to newly seen users.
func FirstStage() Stage { return Stages[0] }
