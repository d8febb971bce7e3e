package features

import "strconv"

// Lookup resolves a named value.
type Lookup interface {
	Lookup(name string) (float64, bool)
}

// Aligned is a vector projected onto an explicit, ordered name list.
type Aligned struct {
	Names  []string
	Values []float64
}

// Lookup implements Lookup so an aligned vector can be aligned again.
func (a Aligned) Lookup(name string) (float64, bool) {
	for i, n := range a.Names {
		if n == name {
			return a.Values[i], true
		}
	}
	return 0, false
}

// Align projects src onto expected, preserving the order of expected and
// zero-filling names src does not know.
func Align(src Lookup, expected []string) Aligned {
	out := Aligned{
		Names:  append([]string(nil), expected...),
		Values: make([]float64, len(expected)),
	}
	for i, name := range expected {
		if v, ok := src.Lookup(name); ok {
			out.Values[i] = v
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
