package strrefine

import "fmt"

// ArrayResolver maps the arguments of string primitives to string handles.
type ArrayResolver interface {
	// OfArgument resolves a {length, content} pair, or a conditional over such
	// pairs, to a string. A String is returned unchanged.
	OfArgument(arg *ExprPtr) (*ExprPtr, error)
	// Find resolves the string stored at ptr and whose length is length. It
	// is used for results written through an out-argument.
	Find(ptr, length *ExprPtr) (*ExprPtr, error)
}

// ArrayPool associates a string symbol to each content pointer. The pool
// records a length lemma every time a pointer is seen with a new length
// expression; the lemmas are retrieved with Associations.
type ArrayPool struct {
	eb *ExprBuilder

	arrays       map[uintptr]*ExprPtr
	lengths      map[[2]uintptr]bool
	associations []*ExprPtr
	counter      int
}

func NewArrayPool(eb *ExprBuilder) *ArrayPool {
	return &ArrayPool{
		eb:      eb,
		arrays:  make(map[uintptr]*ExprPtr),
		lengths: make(map[[2]uintptr]bool),
	}
}

func (p *ArrayPool) OfArgument(arg *ExprPtr) (*ExprPtr, error) {
	switch {
	case arg.Sort() == StringSort:
		return arg, nil
	case arg.Kind() == TY_REFSTRING:
		c := arg.Children()
		return p.Find(c[1], c[0])
	case arg.Kind() == TY_ITE && arg.Sort() == RefStringSort:
		c := arg.Children()
		s1, err := p.OfArgument(c[1])
		if err != nil {
			return nil, err
		}
		s2, err := p.OfArgument(c[2])
		if err != nil {
			return nil, err
		}
		return p.eb.ITE(c[0], s1, s2)
	}
	return nil, fmt.Errorf("array pool: %w: %s is not a string argument", ErrMalformedApplication, arg)
}

func (p *ArrayPool) Find(ptr, length *ExprPtr) (*ExprPtr, error) {
	if ptr.Sort() != PointerSort || length.Sort() != IntSort {
		return nil, fmt.Errorf("array pool: %w: expected pointer and length, got %s and %s",
			ErrMalformedApplication, ptr.Sort(), length.Sort())
	}

	if ptr.Kind() == TY_ITE {
		c := ptr.Children()
		s1, err := p.Find(c[1], length)
		if err != nil {
			return nil, err
		}
		s2, err := p.Find(c[2], length)
		if err != nil {
			return nil, err
		}
		return p.eb.ITE(c[0], s1, s2)
	}

	s, ok := p.arrays[ptr.Id()]
	if !ok {
		s = p.eb.Sym(fmt.Sprintf("string_array_%d", p.counter), StringSort)
		p.counter += 1
		p.arrays[ptr.Id()] = s
	}

	key := [2]uintptr{s.Id(), length.Id()}
	if !p.lengths[key] {
		p.lengths[key] = true
		l, err := p.eb.Length(s)
		if err != nil {
			return nil, err
		}
		association, err := p.eb.Eq(l, length)
		if err != nil {
			return nil, err
		}
		p.associations = append(p.associations, association)
	}
	return s, nil
}

// Associations returns the length lemmas recorded so far.
func (p *ArrayPool) Associations() []*ExprPtr {
	return p.associations
}

// Arrays returns the number of pointers the pool knows about.
func (p *ArrayPool) Arrays() int {
	return len(p.arrays)
}
