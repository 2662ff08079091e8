package binding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/Swind/go-offload/core"
)

var (
	// ErrInvalidSignature is returned for functions that can't be bound.
	ErrInvalidSignature = errors.New("binding: invalid signature")

	// ErrDuplicateOperation is returned when two operations share a name.
	ErrDuplicateOperation = errors.New("binding: duplicate operation")

	// ErrEmptySpec is returned by FromSpec for a value without exported methods.
	ErrEmptySpec = errors.New("binding: spec has no exported methods")
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// ArgumentError reports an argument that doesn't satisfy an operation's contract.
// Index is -1 for arity mismatches.
type ArgumentError struct {
	Op     string
	Index  int
	Want   reflect.Type
	Got    reflect.Type
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("binding: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("binding: %s: argument %d: %s (want %v, got %v)", e.Op, e.Index, e.Reason, e.Want, e.Got)
}

// Signature is the argument and return contract of an operation.
type Signature struct {
	Args         []reflect.Type
	Result       reflect.Type // nil when the function yields no value
	Variadic     bool
	WantsContext bool
	ReturnsError bool
}

func (s Signature) String() string {
	args := make([]string, 0, len(s.Args)+1)
	if s.WantsContext {
		args = append(args, "context.Context")
	}
	for i, t := range s.Args {
		if s.Variadic && i == len(s.Args)-1 {
			args = append(args, "..."+t.Elem().String())
			continue
		}
		args = append(args, t.String())
	}

	var results []string
	if s.Result != nil {
		results = append(results, s.Result.String())
	}
	if s.ReturnsError {
		results = append(results, "error")
	}

	out := "func(" + strings.Join(args, ", ") + ")"
	switch len(results) {
	case 0:
		return out
	case 1:
		return out + " " + results[0]
	default:
		return out + " (" + strings.Join(results, ", ") + ")"
	}
}

// Operation is a named function with its derived Signature.
type Operation struct {
	Name      string
	Signature Signature
	fn        reflect.Value
}

// Func binds fn under name.
//
// fn may take a leading context.Context, which receives the worker context.
// Accepted results are (), (R), (error) and (R, error).
func Func(name string, fn any) (Operation, error) {
	if name == "" {
		return Operation{}, fmt.Errorf("%w: empty operation name", ErrInvalidSignature)
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return Operation{}, fmt.Errorf("%w: %s is %T, not a function", ErrInvalidSignature, name, fn)
	}

	sig, err := signatureOf(v.Type())
	if err != nil {
		return Operation{}, fmt.Errorf("%w: %s: %v", ErrInvalidSignature, name, err)
	}
	return Operation{Name: name, Signature: sig, fn: v}, nil
}

// MustFunc is like Func but panics on error. Intended for package-level tables.
func MustFunc(name string, fn any) Operation {
	op, err := Func(name, fn)
	if err != nil {
		panic(err)
	}
	return op
}

func signatureOf(t reflect.Type) (Signature, error) {
	sig := Signature{Variadic: t.IsVariadic()}

	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		sig.WantsContext = true
		first = 1
	}
	for i := first; i < t.NumIn(); i++ {
		sig.Args = append(sig.Args, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.ReturnsError = true
		} else {
			sig.Result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return Signature{}, fmt.Errorf("second result must be error, got %v", t.Out(1))
		}
		sig.Result = t.Out(0)
		sig.ReturnsError = true
	default:
		return Signature{}, fmt.Errorf("too many results (%d)", t.NumOut())
	}
	return sig, nil
}

// Call validates args against the signature and invokes the function.
func (op Operation) Call(ctx context.Context, args ...any) (any, error) {
	in, err := op.arguments(ctx, args)
	if err != nil {
		return nil, err
	}

	out := op.fn.Call(in)

	var result any
	if op.Signature.Result != nil {
		result = out[0].Interface()
	}
	if op.Signature.ReturnsError {
		if errValue := out[len(out)-1]; !errValue.IsNil() {
			return result, errValue.Interface().(error)
		}
	}
	return result, nil
}

// Callable adapts the operation to a core.Callable.
func (op Operation) Callable() core.Callable {
	return op.Call
}

func (op Operation) arguments(ctx context.Context, args []any) ([]reflect.Value, error) {
	sig := op.Signature
	fixed := len(sig.Args)
	if sig.Variadic {
		fixed--
	}

	if len(args) < fixed || (!sig.Variadic && len(args) > fixed) {
		return nil, &ArgumentError{
			Op:     op.Name,
			Index:  -1,
			Reason: fmt.Sprintf("want %d arguments, got %d", fixed, len(args)),
		}
	}

	in := make([]reflect.Value, 0, len(args)+1)
	if sig.WantsContext {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}

	for i, arg := range args {
		want := sig.Args[min(i, len(sig.Args)-1)]
		if sig.Variadic && i >= fixed {
			want = want.Elem()
		}
		v, err := convertArg(arg, want)
		if err != nil {
			return nil, &ArgumentError{
				Op:     op.Name,
				Index:  i,
				Want:   want,
				Got:    reflect.TypeOf(arg),
				Reason: err.Error(),
			}
		}
		in = append(in, v)
	}
	return in, nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, errors.New("nil is not allowed")
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}

	// Numeric arguments convert when the value fits, so callers can pass
	// plain int literals to int32/uint8/float32 parameters.
	switch {
	case isInt(v.Kind()) && isInt(want.Kind()):
		if reflect.Zero(want).OverflowInt(v.Int()) {
			return reflect.Value{}, errors.New("value overflows")
		}
		return v.Convert(want), nil
	case isInt(v.Kind()) && isUint(want.Kind()):
		if v.Int() < 0 || reflect.Zero(want).OverflowUint(uint64(v.Int())) {
			return reflect.Value{}, errors.New("value out of range")
		}
		return v.Convert(want), nil
	case isUint(v.Kind()) && isUint(want.Kind()):
		if reflect.Zero(want).OverflowUint(v.Uint()) {
			return reflect.Value{}, errors.New("value overflows")
		}
		return v.Convert(want), nil
	case isUint(v.Kind()) && isInt(want.Kind()):
		if v.Uint() > uint64(1<<63-1) || reflect.Zero(want).OverflowInt(int64(v.Uint())) {
			return reflect.Value{}, errors.New("value overflows")
		}
		return v.Convert(want), nil
	case (isInt(v.Kind()) || isUint(v.Kind()) || isFloat(v.Kind())) && isFloat(want.Kind()):
		return v.Convert(want), nil
	}
	return reflect.Value{}, errors.New("type mismatch")
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// =============================================================================
// Table
// =============================================================================

// Table is an immutable set of operations. It implements core.Target.
type Table struct {
	ops   map[string]Operation
	names []string
}

var _ core.Target = (*Table)(nil)

// NewTable builds a Table, rejecting empty and duplicate names.
func NewTable(ops ...Operation) (*Table, error) {
	t := &Table{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if err := t.add(op.Name, op); err != nil {
			return nil, err
		}
	}
	sort.Strings(t.names)
	return t, nil
}

func (t *Table) add(name string, op Operation) error {
	if name == "" || !op.fn.IsValid() {
		return fmt.Errorf("%w: unnamed or unbound operation", ErrInvalidSignature)
	}
	if _, exists := t.ops[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, name)
	}
	t.ops[name] = op
	t.names = append(t.names, name)
	return nil
}

// Lookup implements core.Target.
func (t *Table) Lookup(name string) (core.Callable, bool) {
	op, ok := t.ops[name]
	if !ok {
		return nil, false
	}
	return op.Callable(), true
}

// Operation returns the operation registered under name.
func (t *Table) Operation(name string) (Operation, bool) {
	op, ok := t.ops[name]
	return op, ok
}

// Signature returns the contract of the operation registered under name.
func (t *Table) Signature(name string) (Signature, bool) {
	op, ok := t.ops[name]
	return op.Signature, ok
}

// Names returns every registered name, sorted.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Len returns the number of registered names, aliases included.
func (t *Table) Len() int {
	return len(t.ops)
}

// =============================================================================
// Spec binding
// =============================================================================

// FromSpec binds every exported method of spec.
//
// The spec plays the role of a header: its method set is the library surface
// and each method's signature is the call contract. Every method is reachable
// under its Go name and under its snake_case form, so RustSleep can be
// invoked as "RustSleep" or "rust_sleep".
func FromSpec(spec any) (*Table, error) {
	v := reflect.ValueOf(spec)
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: nil spec", ErrEmptySpec)
	}
	typ := v.Type()
	if typ.NumMethod() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmptySpec, typ)
	}

	t := &Table{ops: make(map[string]Operation, typ.NumMethod()*2)}
	for i := range typ.NumMethod() {
		method := typ.Method(i)
		op, err := Func(method.Name, v.Method(i).Interface())
		if err != nil {
			return nil, err
		}
		if err := t.add(method.Name, op); err != nil {
			return nil, err
		}

		alias := SnakeCase(method.Name)
		if alias == method.Name {
			continue
		}
		aliased := op
		aliased.Name = alias
		if err := t.add(alias, aliased); err != nil {
			return nil, err
		}
	}
	sort.Strings(t.names)
	return t, nil
}

// SnakeCase converts a Go identifier to snake_case, keeping acronyms together:
// "RustSleep" -> "rust_sleep", "HTTPGet" -> "http_get", "AddInt32" -> "add_int32".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
