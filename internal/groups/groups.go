// Package groups lets services assign users to named groups.
//
// Channel bans of the form g:<mask> then match users in any group matching
// the mask. e.g., +b g:spam* bans users in the group spammers.
package groups

import (
	"sort"
	"strings"

	"github.com/horgh/catbox-modules/internal/ext"
)

// ItemName is the extension item key groups are stored under.
const ItemName = "groups"

// MaxGroups is the most groups we track for a user. Services set this list so
// it is not trusted. Further names are dropped.
const MaxGroups = 64

// List is the groups a user is in. Sorted, without duplicates.
type List []string

// String joins the names with spaces.
func (l List) String() string {
	return strings.Join(l, " ")
}

// Item stores a user's List.
type Item struct {
	*ext.SimpleItem[List]
}

// NewItem creates an Item.
func NewItem() *Item {
	return &Item{ext.NewSimpleItem[List](ItemName)}
}

// Serialize joins the user's groups with spaces. Blank if they have none.
func (i *Item) Serialize(e *ext.Extensible) string {
	l := i.Get(e)
	if l == nil {
		return ""
	}
	return l.String()
}

// Local is false. Groups are set by services.
func (i *Item) Local() bool {
	return false
}

// Unserialize replaces the user's groups with the space separated names.
//
// If there are no names then the user is left with no group list at all. We
// never store an empty list.
func (i *Item) Unserialize(e *ext.Extensible, value string) {
	l := parseList(value)
	if len(l) == 0 {
		i.Unset(e)
		return
	}

	i.Set(e, &l)
}

func parseList(s string) List {
	seen := map[string]struct{}{}
	var l List

	for _, name := range strings.Split(s, " ") {
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		if len(l) == MaxGroups {
			break
		}
		seen[name] = struct{}{}
		l = append(l, name)
	}

	sort.Strings(l)
	return l
}

// Result is the outcome of checking a ban against a user.
type Result int

const (
	// NotApplicable means the ban is not a group ban, or the user has no
	// groups. Other ban types should be tried.
	NotApplicable Result = iota

	// Match means the user is in a group the ban covers.
	Match

	// NoMatch means the user has groups but none the ban covers.
	NoMatch
)

func (r Result) String() string {
	switch r {
	case Match:
		return "match"
	case NoMatch:
		return "no_match"
	default:
		return "not_applicable"
	}
}

// Filter checks group bans.
type Filter struct {
	item  *Item
	match func(s, mask string) bool
}

// NewFilter creates a Filter reading groups from the item.
//
// match decides whether a group name matches the part of the ban after g:.
func NewFilter(item *Item, match func(s, mask string) bool) *Filter {
	return &Filter{
		item:  item,
		match: match,
	}
}

// CheckBan decides whether the ban mask matches the user's groups.
func (f *Filter) CheckBan(e *ext.Extensible, banMask string) Result {
	if len(banMask) <= 2 || banMask[0] != 'g' || banMask[1] != ':' {
		return NotApplicable
	}

	l := f.item.Get(e)
	if l == nil {
		return NotApplicable
	}

	groupMask := banMask[2:]
	for _, name := range *l {
		if f.match(name, groupMask) {
			return Match
		}
	}

	return NoMatch
}

// Groups returns the user's groups joined with spaces. Blank if none.
func (f *Filter) Groups(e *ext.Extensible) string {
	return f.item.Serialize(e)
}

// Whois returns the line to show in a WHOIS of the user, if any.
func (f *Filter) Whois(e *ext.Extensible) (string, bool) {
	s := f.Groups(e)
	return s, s != ""
}
