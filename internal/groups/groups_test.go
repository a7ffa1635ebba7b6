package groups

import (
	"sort"
	"strings"
	"testing"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/catbox-modules/internal/mask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnserialize(t *testing.T) {
	tests := []struct {
		input  string
		output string
		exists bool
	}{
		{"ops vips", "ops vips", true},
		{"vips ops", "ops vips", true},
		{"ops ops  vips ops", "ops vips", true},
		{"  single  ", "single", true},
		{"Ops ops", "Ops ops", true},
		{"", "", false},
		{"   ", "", false},
	}

	item := NewItem()

	for _, test := range tests {
		for _, prior := range []string{"", "old"} {
			var e ext.Extensible
			item.Unserialize(&e, prior)

			item.Unserialize(&e, test.input)

			if e.Has(ItemName) != test.exists {
				t.Errorf("Unserialize(%q) with prior %q: exists = %v, wanted %v",
					test.input, prior, e.Has(ItemName), test.exists)
				continue
			}

			if output := item.Serialize(&e); output != test.output {
				t.Errorf("Unserialize(%q) then Serialize() = %q, wanted %q", test.input,
					output, test.output)
			}
		}
	}
}

func TestSerializeRoundTripIsSetEqual(t *testing.T) {
	inputs := []string{
		"a b c",
		"c b a a",
		"x",
		"staff  staff helpers",
	}

	item := NewItem()

	for _, input := range inputs {
		var e ext.Extensible
		item.Unserialize(&e, input)

		assert.Equal(t, tokenSet(input), tokenSet(item.Serialize(&e)), input)
	}
}

func tokenSet(s string) []string {
	seen := map[string]struct{}{}
	var l []string
	for _, tok := range strings.Fields(s) {
		if _, exists := seen[tok]; exists {
			continue
		}
		seen[tok] = struct{}{}
		l = append(l, tok)
	}
	sort.Strings(l)
	return l
}

func TestUnserializeCapsGroups(t *testing.T) {
	var names []string
	for i := 0; i < MaxGroups+10; i++ {
		names = append(names, strings.Repeat("g", i+1))
	}

	item := NewItem()
	var e ext.Extensible
	item.Unserialize(&e, strings.Join(names, " "))

	l := item.Get(&e)
	require.NotNil(t, l)
	assert.Len(t, *l, MaxGroups)
}

func TestUnserializeReplacesList(t *testing.T) {
	item := NewItem()
	var e ext.Extensible

	item.Unserialize(&e, "ops vips")
	before := item.Get(&e)

	item.Unserialize(&e, "staff")

	assert.Equal(t, List{"ops", "vips"}, *before, "old list is not modified")
	assert.Equal(t, "staff", item.Serialize(&e))
}

func TestCheckBan(t *testing.T) {
	tests := []struct {
		groups string
		ban    string
		output Result
	}{
		{"ops vips", "g:op*", Match},
		{"ops vips", "g:VIPS", Match},
		{"ops vips", "g:?ips", Match},
		{"ops vips", "g:*", Match},
		{"ops vips", "g:admin*", NoMatch},
		{"ops vips", "g:op", NoMatch},
		{"ops vips", "n:foo", NotApplicable},
		{"ops vips", "g:", NotApplicable},
		{"ops vips", "g", NotApplicable},
		{"ops vips", "", NotApplicable},
		{"ops vips", "G:ops", NotApplicable},
		{"ops vips", "*!*@*", NotApplicable},
		{"", "g:op*", NotApplicable},
		{"", "g:*", NotApplicable},
	}

	item := NewItem()
	f := NewFilter(item, mask.Match)

	for _, test := range tests {
		var e ext.Extensible
		item.Unserialize(&e, test.groups)

		output := f.CheckBan(&e, test.ban)
		if output != test.output {
			t.Errorf("CheckBan(%q, %q) = %s, wanted %s", test.groups, test.ban,
				output, test.output)
		}
	}
}

func TestCheckBanAfterClear(t *testing.T) {
	item := NewItem()
	f := NewFilter(item, mask.Match)
	var e ext.Extensible

	item.Unserialize(&e, "ops")
	assert.Equal(t, Match, f.CheckBan(&e, "g:ops"))

	item.Unserialize(&e, "")
	assert.Equal(t, NotApplicable, f.CheckBan(&e, "g:ops"))
}

func TestWhois(t *testing.T) {
	item := NewItem()
	f := NewFilter(item, mask.Match)
	var e ext.Extensible

	_, ok := f.Whois(&e)
	assert.False(t, ok)
	assert.Equal(t, "", f.Groups(&e))

	item.Unserialize(&e, "vips ops")
	s, ok := f.Whois(&e)
	assert.True(t, ok)
	assert.Equal(t, "ops vips", s)
}

func TestSetThroughRegistry(t *testing.T) {
	r := ext.NewRegistry()
	item := NewItem()
	require.NoError(t, r.Register(item))

	var e ext.Extensible
	require.NoError(t, r.Unserialize(&e, ItemName, "vips ops"))

	s, err := r.Serialize(&e, ItemName)
	require.NoError(t, err)
	assert.Equal(t, "ops vips", s)
}
