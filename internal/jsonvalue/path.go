package jsonvalue

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Segment is one step into a JSON tree: an object member or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path records how deep into a pair of trees a walk has descended.
// Paths are values; Key and Index return extended copies.
type Path []Segment

// Key returns p extended by an object member name.
func (p Path) Key(name string) Path {
	return p.extend(Segment{Key: name})
}

// Index returns p extended by an array index.
func (p Path) Index(i int) Path {
	return p.extend(Segment{Index: i, IsIndex: true})
}

func (p Path) extend(s Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// String renders the path as a JSON array, e.g. ["items",0,"id"].
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range p {
		if i > 0 {
			sb.WriteByte(',')
		}
		if s.IsIndex {
			sb.WriteString(strconv.Itoa(s.Index))
			continue
		}
		b, _ := json.Marshal(s.Key)
		sb.Write(b)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Pointer renders the path as an RFC 6901 JSON pointer. The empty path is "".
func (p Path) Pointer() string {
	var sb strings.Builder
	for _, s := range p {
		sb.WriteByte('/')
		if s.IsIndex {
			sb.WriteString(strconv.Itoa(s.Index))
			continue
		}
		sb.WriteString(pointerEscaper.Replace(s.Key))
	}
	return sb.String()
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
