package meta

import "fmt"

// Policy decides whether a fanned out command succeeded, given how many units succeeded
type Policy struct {
	name string
	need func(total int) int
}

func (p Policy) String() string {
	return p.name
}

// Satisfied by succeeded units out of total?
func (p Policy) Satisfied(succeeded, total int) bool {
	if total == 0 {
		return false
	}
	return succeeded >= p.need(total)
}

// Any unit succeeding is enough
func Any() Policy {
	return Policy{name: "any", need: func(int) int { return 1 }}
}

// All units must succeed
func All() Policy {
	return Policy{name: "all", need: func(total int) int { return total }}
}

// Quorum requires n units to succeed, or all of them when fewer units are involved
func Quorum(n int) Policy {
	return Policy{
		name: fmt.Sprintf("quorum(%d)", n),
		need: func(total int) int {
			if n < 1 {
				return 1
			}
			if n > total {
				return total
			}
			return n
		},
	}
}

// ParsePolicy reads a policy from its name: any, all or quorum(n)
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "any":
		return Any(), nil
	case "all":
		return All(), nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "quorum(%d)", &n); err != nil || n < 1 {
		return Policy{}, fmt.Errorf("unknown policy %q: expected any, all or quorum(n)", s)
	}
	return Quorum(n), nil
}
