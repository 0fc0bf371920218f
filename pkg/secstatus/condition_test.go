package secstatus

import "testing"

type taMechanism struct {
	bits uint64
}

func (m taMechanism) Kind() Kind { return kindTA }
func (m taMechanism) InvalidatedBy(_ Event) bool { return false }

func requireTABit(bit uint) Condition {
	return ConditionFunc("ta-bit", func(mechs []Mechanism) bool {
		for _, m := range mechs {
			if ta, ok := m.(taMechanism); ok && ta.bits&(1<<bit) != 0 {
				return true
			}
		}
		return false
	}, kindTA)
}

func TestSatisfied(t *testing.T) {
	s := New()
	s.Apply(Update{Installs: []Install{
		{Context: Application, Mechanism: taMechanism{bits: 0b100}},
		{Context: Global, Mechanism: NewMarker(kindPIN)},
	}})

	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"Empty list denies", nil, false},
		{"Always", []Condition{Always}, true},
		{"Never", []Condition{Never}, false},
		{"Only second satisfiable", []Condition{requireTABit(0), requireTABit(2)}, true},
		{"None satisfiable", []Condition{requireTABit(0), requireTABit(1), Never}, false},
		{"Require installed kind", []Condition{Require(kindTA)}, true},
		// pin lives in GLOBAL, checks read APPLICATION only.
		{"Require kind of another context", []Condition{Require(kindPIN)}, false},
		{"Require all kinds", []Condition{Require(kindTA, kindPIN)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfied(s, Application, tt.conds); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFirstSatisfied(t *testing.T) {
	s := New()
	s.Apply(Update{Installs: []Install{{Context: Application, Mechanism: taMechanism{bits: 0b11}}}})

	first, second := requireTABit(0), requireTABit(1)
	got, ok := FirstSatisfied(s, Application, []Condition{Never, first, second})
	if !ok || got != first {
		t.Errorf("FirstSatisfied() = %v, %v; want the first satisfied condition", got, ok)
	}
}

func TestCondition_String(t *testing.T) {
	tests := []struct {
		cond Condition
		want string
	}{
		{Always, "always"},
		{Never, "never"},
		{Require(kindTA, kindPIN), "require(ta,pin)"},
		{requireTABit(3), "ta-bit[ta]"},
	}

	for _, tt := range tests {
		if got := tt.cond.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
