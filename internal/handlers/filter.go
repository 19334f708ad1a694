package handlers

import (
	"net/url"
	"strconv"
	"strings"
)

// span is a half-open byte range [begin, end).
type span struct {
	begin, end int64
}

// newSpan orders a and b so the range is valid whichever came first.
func newSpan(a, b int64) span {
	return span{begin: min(a, b), end: max(a, b)}
}

// clamp limits s to [0, size].
func (s span) clamp(size int64) span {
	return span{begin: min(max(s.begin, 0), size), end: min(max(s.end, 0), size)}
}

// fieldFilter selects which document fields a CDMI GET returns.
type fieldFilter struct {
	// fields is nil when every field is wanted.
	fields map[string]bool
	// value restricts the value field to a byte range.
	value *span
	// metadataPrefix restricts metadata to keys with this prefix.
	metadataPrefix string
}

func (f *fieldFilter) wants(name string) bool {
	return f.fields == nil || f.fields[name]
}

// parseFilter reads the attribute filter from a raw query string. Two forms
// are accepted:
//
//	objectID;parentURI;value:1-6;metadata:prefix
//	objectID=true&value=1&value=6&metadata=prefix
//
// Unknown keys are kept and simply never match a field.
func parseFilter(rawQuery string) *fieldFilter {
	f := &fieldFilter{}
	if rawQuery == "" {
		return f
	}
	f.fields = make(map[string]bool)

	if !strings.Contains(rawQuery, "=") {
		for _, tok := range strings.FieldsFunc(rawQuery, func(r rune) bool { return r == ';' || r == '&' }) {
			if unescaped, err := url.QueryUnescape(tok); err == nil {
				tok = unescaped
			}
			name, arg, _ := strings.Cut(tok, ":")
			switch {
			case name == "value":
				f.add(name, splitRange(arg))
			case arg != "":
				f.add(name, []string{arg})
			default:
				f.add(name, nil)
			}
		}
		return f
	}

	values, err := url.ParseQuery(strings.ReplaceAll(rawQuery, ";", "&"))
	if err != nil {
		return f
	}
	for name, args := range values {
		f.add(name, args)
	}
	return f
}

func splitRange(arg string) []string {
	if arg == "" {
		return nil
	}
	a, b, ok := strings.Cut(arg, "-")
	if !ok {
		return []string{arg}
	}
	return []string{a, b}
}

// add records name with its arguments: a value range takes two numbers and a
// metadata filter takes a prefix.
func (f *fieldFilter) add(name string, args []string) {
	if name == "" {
		return
	}
	f.fields[name] = true
	switch name {
	case "value":
		var nums []int64
		for _, a := range args {
			if n, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64); err == nil {
				nums = append(nums, n)
			}
		}
		if len(nums) >= 2 {
			s := newSpan(nums[0], nums[1])
			f.value = &s
		}
	case "metadata":
		for _, a := range args {
			if a != "" && a != "true" {
				f.metadataPrefix = a
				break
			}
		}
	}
}
