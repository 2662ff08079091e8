// Package binding builds the capability table a Dispatcher calls into.
//
// A Table maps operation names to Go functions together with their argument
// and return contract, derived once at bind time:
//
//	lib, err := binding.FromSpec(&nativeLib{})
//	if err != nil {
//		return err
//	}
//	d := core.NewDispatcher(lib)
//
// Arguments are checked against the contract when the call runs, on the
// dispatcher's worker: wrong arity or an unassignable argument fails the
// call with an *ArgumentError. Untyped numeric values are converted to the
// parameter's numeric type when they fit.
package binding
