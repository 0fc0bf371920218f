package tlv

import "strings"

// Path is a sequence of tags leading from the top level of a TLV forest down
// to a nested object, e.g. {7F4C, 06} for the OID inside a CHAT.
type Path []Tag

// NewPath builds a path from hex tags: NewPath("7C", "80").
func NewPath(tags ...string) Path {
	p := make(Path, 0, len(tags))
	for _, t := range tags {
		p = append(p, MustTag(t))
	}
	return p
}

// Contains reports whether an object is reachable through path in forest.
// Every sibling carrying the expected tag is explored, not only the first one.
func Contains(forest []*Node, path Path) bool {
	return find(forest, path) != nil
}

// Find returns the first object reachable through path in forest, or nil.
func Find(forest []*Node, path Path) *Node {
	return find(forest, path)
}

func find(forest []*Node, path Path) *Node {
	if len(path) == 0 {
		return nil
	}

	for _, n := range forest {
		if n.Tag != path[0] {
			continue
		}
		if len(path) == 1 {
			return n
		}
		if hit := find(n.Children, path[1:]); hit != nil {
			return hit
		}
	}
	return nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return strings.Join(parts, "/")
}
