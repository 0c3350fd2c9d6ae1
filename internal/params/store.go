package params

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Rejection reasons for parameter change requests
var (
	ErrUnknownParameter = errors.New("params: unknown parameter")
	ErrReadOnly         = errors.New("params: parameter is read-only")
	ErrTypeMismatch     = errors.New("params: value type mismatch")
	ErrOutOfRange       = errors.New("params: value out of range")
	ErrAlreadyDeclared  = errors.New("params: parameter already declared")
)

// Mutability classifies when a parameter may change
type Mutability int

const (
	// ReadOnly parameters take effect only at the next full reopen
	ReadOnly Mutability = iota
	// Dynamic parameters take effect on the next acquisition cycle
	Dynamic
)

func (m Mutability) String() string {
	if m == Dynamic {
		return "dynamic"
	}
	return "read-only"
}

// Validator checks a candidate value before it is applied. The validator
// is resolved once at declaration time, never per request.
type Validator func(Value) error

// Descriptor describes a declared parameter
type Descriptor struct {
	Name       string
	Mutability Mutability
	Default    Value
	Current    Value
}

type entry struct {
	mutability Mutability
	def        Value
	cur        Value
	validate   Validator
}

// Store holds the declared parameter set. Reads are safe from any
// goroutine; writes go through Apply one assignment at a time under the
// lock, so readers always observe a consistent value.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty parameter store
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Declare registers a parameter with its default value, mutability class
// and optional validator. Declaring the same name twice is an error.
func (s *Store) Declare(name string, def Value, mut Mutability, validate Validator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyDeclared, name)
	}
	if validate != nil {
		if err := validate(def); err != nil {
			return fmt.Errorf("params: default for %s rejected by validator: %w", name, err)
		}
	}
	s.entries[name] = &entry{
		mutability: mut,
		def:        def,
		cur:        def,
		validate:   validate,
	}
	return nil
}

// Get returns the current value of a parameter
func (s *Store) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return Value{}, false
	}
	return e.cur, true
}

// GetBool returns a bool parameter, or false if absent
func (s *Store) GetBool(name string) bool {
	v, _ := s.Get(name)
	return v.AsBool()
}

// GetInt returns an int parameter, or 0 if absent
func (s *Store) GetInt(name string) int64 {
	v, _ := s.Get(name)
	return v.AsInt()
}

// GetFloat returns a float parameter, or 0 if absent
func (s *Store) GetFloat(name string) float64 {
	v, _ := s.Get(name)
	return v.AsFloat()
}

// GetString returns a string parameter, or "" if absent
func (s *Store) GetString(name string) string {
	v, _ := s.Get(name)
	return v.AsString()
}

// Request is a single parameter change request
type Request struct {
	Name  string
	Value Value
}

// Result is the outcome of one Request. Err is nil when the request was
// accepted and applied.
type Result struct {
	Name  string
	Value Value
	Err   error
}

// Accepted reports whether the request was applied
func (r Result) Accepted() bool { return r.Err == nil }

// Apply validates and applies a batch of change requests. Requests are
// independent: a rejection does not roll back earlier accepted requests
// in the same batch. Accepted values are visible to readers as soon as
// the single assignment completes.
func (s *Store) Apply(reqs []Request) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, s.applyOne(req))
	}
	return results
}

func (s *Store) applyOne(req Request) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Name: req.Name, Value: req.Value}

	e, ok := s.entries[req.Name]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownParameter, req.Name)
		return res
	}
	if e.mutability != Dynamic {
		res.Err = fmt.Errorf("%w: %s", ErrReadOnly, req.Name)
		return res
	}

	val, ok := coerce(req.Value, e.def.Kind())
	if !ok {
		res.Err = fmt.Errorf("%w: %s expects %s, got %s",
			ErrTypeMismatch, req.Name, e.def.Kind(), req.Value.Kind())
		return res
	}
	if e.validate != nil {
		if err := e.validate(val); err != nil {
			res.Err = fmt.Errorf("%w: %s: %v", ErrOutOfRange, req.Name, err)
			return res
		}
	}

	e.cur = val
	res.Value = val
	return res
}

// List returns all descriptors sorted by name
func (s *Store) List() []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Descriptor, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, Descriptor{
			Name:       name,
			Mutability: e.mutability,
			Default:    e.def,
			Current:    e.cur,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Positive is a validator requiring a value strictly greater than zero
func Positive(v Value) error {
	if v.AsFloat() <= 0 {
		return fmt.Errorf("must be > 0, got %s", v)
	}
	return nil
}
