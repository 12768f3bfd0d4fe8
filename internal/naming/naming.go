// Package naming turns free-form OCEL type and attribute names into
// identifiers the remote platform accepts.
package naming

import (
	"strconv"
	"strings"

	"ocelbridge/pkg/models"
)

// Result is the outcome of cleaning one name.
type Result struct {
	Name      string
	Dropped   []rune
	Prefixed  bool
	Unchanged bool
}

// Changed reports whether cleaning altered the input.
func (r Result) Changed() bool {
	return !r.Unchanged
}

// Sanitize returns a platform-valid identifier for raw.
func Sanitize(raw string) string {
	return Clean(raw).Name
}

// Clean keeps ASCII letters, digits and spaces, title-cases each
// whitespace-separated token and joins them. A result that is empty or does
// not start with a letter gets an "A" prefix. ID and Time pass through, and so
// does any input that is already a valid identifier, which makes Clean
// idempotent.
func Clean(raw string) Result {
	if raw == models.ColumnID || raw == models.ColumnTime || IsIdentifier(raw) {
		return Result{Name: raw, Unchanged: true}
	}

	var res Result
	var kept strings.Builder
	for _, r := range raw {
		if isASCIIAlnum(r) || r == ' ' {
			kept.WriteRune(r)
			continue
		}
		res.Dropped = append(res.Dropped, r)
	}

	var name strings.Builder
	for _, token := range strings.Fields(kept.String()) {
		name.WriteString(capitalize(token))
	}

	res.Name = name.String()
	if res.Name == "" || !isASCIILetter(rune(res.Name[0])) {
		res.Name = "A" + res.Name
		res.Prefixed = true
	}
	return res
}

// IsIdentifier reports whether s consists of ASCII letters and digits only
// and starts with an uppercase letter.
func IsIdentifier(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if !isASCIIAlnum(r) {
			return false
		}
	}
	return true
}

func capitalize(token string) string {
	lower := strings.ToLower(token)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIAlnum(r rune) bool {
	return isASCIILetter(r) || (r >= '0' && r <= '9')
}

// Namer hands out names that are unique within one schema.
type Namer struct {
	used map[string]bool
}

// NewNamer returns a Namer with the given names already taken.
func NewNamer(taken ...string) *Namer {
	n := &Namer{used: make(map[string]bool)}
	for _, name := range taken {
		n.used[name] = true
	}
	return n
}

// Claim reserves name, appending 2, 3, ... when it is taken. The second
// return value is false when a suffix had to be added.
func (n *Namer) Claim(name string) (string, bool) {
	if !n.used[name] {
		n.used[name] = true
		return name, true
	}
	for i := 2; ; i++ {
		candidate := name + strconv.Itoa(i)
		if !n.used[candidate] {
			n.used[candidate] = true
			return candidate, false
		}
	}
}

// Taken reports whether name has been claimed.
func (n *Namer) Taken(name string) bool {
	return n.used[name]
}
