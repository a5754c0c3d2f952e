// Package hierarchy models the firm's organizational role tree. The tree is
// administrator-edited data: a forest of titled nodes whose normalized slugs
// scope who may assign work to whom.
package hierarchy

import (
	"regexp"
	"strings"
)

// Node is one role in the forest. Children are roles the node's holder
// supervises.
type Node struct {
	Title    string  `json:"title"`
	Children []*Node `json:"children,omitempty"`
}

// Slug returns the node's normalized role slug.
func (n *Node) Slug() string {
	return Normalize(n.Title)
}

// Option is one entry for a role-select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// RoleSet is the answer to "which roles may this user assign to". An
// unrestricted set matches every role and carries no members.
type RoleSet struct {
	Unrestricted bool
	Roles        map[string]struct{}
}

// Contains reports whether slug is assignable under the set.
func (s RoleSet) Contains(slug string) bool {
	if s.Unrestricted {
		return true
	}
	_, ok := s.Roles[Normalize(slug)]
	return ok
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize converts a role title to its slug: trimmed, lowercased, internal
// whitespace collapsed to single underscores. Empty input yields "".
func Normalize(title string) string {
	title = strings.TrimSpace(strings.ToLower(title))
	if title == "" {
		return ""
	}
	return whitespace.ReplaceAllString(title, "_")
}

// FindNode locates the first node whose slug matches, walking the forest in
// pre-order: roots in array order, each root's subtree fully before the next.
// Returns nil if no node matches.
func FindNode(forest []*Node, slug string) *Node {
	for _, root := range forest {
		if found := findNode(root, slug); found != nil {
			return found
		}
	}
	return nil
}

func findNode(n *Node, slug string) *Node {
	if n == nil {
		return nil
	}
	if n.Slug() == slug {
		return n
	}
	for _, child := range n.Children {
		if found := findNode(child, slug); found != nil {
			return found
		}
	}
	return nil
}

// DescendantRoles collects the slugs beneath the node matching slug. With
// includeSelf the matched node's own slug is included. An unknown slug yields
// an empty set.
func DescendantRoles(forest []*Node, slug string, includeSelf bool) map[string]struct{} {
	out := map[string]struct{}{}
	node := FindNode(forest, slug)
	if node == nil {
		return out
	}
	if includeSelf {
		collect(node, out)
	} else {
		for _, child := range node.Children {
			collect(child, out)
		}
	}
	return out
}

func collect(n *Node, out map[string]struct{}) {
	out[n.Slug()] = struct{}{}
	for _, child := range n.Children {
		collect(child, out)
	}
}

// AssignableRoles resolves the set of role slugs actingRole may assign to.
// Admins are unrestricted. Everyone else gets their own subtree; a role
// missing from the tree falls back to just its own slug, so an unconfigured
// tree never locks users out of their own level.
func AssignableRoles(forest []*Node, actingRole string, isAdmin bool) RoleSet {
	if isAdmin {
		return RoleSet{Unrestricted: true}
	}
	slug := Normalize(actingRole)
	roles := DescendantRoles(forest, slug, true)
	if len(roles) == 0 {
		roles = map[string]struct{}{slug: {}}
	}
	return RoleSet{Roles: roles}
}

// RoleOptions flattens the forest into select options in pre-order, each
// label indented by "— " per depth level. An empty forest falls back to the
// given role slugs verbatim.
func RoleOptions(forest []*Node, fallbackRoles []string) []Option {
	if len(forest) == 0 {
		opts := make([]Option, 0, len(fallbackRoles))
		for _, r := range fallbackRoles {
			opts = append(opts, Option{Value: Normalize(r), Label: r})
		}
		return opts
	}
	var opts []Option
	for _, root := range forest {
		opts = appendOptions(opts, root, 0)
	}
	return opts
}

func appendOptions(opts []Option, n *Node, depth int) []Option {
	opts = append(opts, Option{
		Value: n.Slug(),
		Label: strings.Repeat("— ", depth) + n.Title,
	})
	for _, child := range n.Children {
		opts = appendOptions(opts, child, depth+1)
	}
	return opts
}
