package data

// Route identifies a controller action: the (module, class, action)
// triple plus their FNV-1a-64 IDs, an optional positional parameter and
// an optional language override (spec §3, §4.F).
type Route struct {
	Module   string
	Class    string
	Action   string
	ModuleID uint64
	ClassID  uint64
	ActionID uint64

	Param  string
	HasLangID bool
	LangID    uint64
}

// BuildRoute computes the FNV-1a-64 IDs from the segment names exactly
// as given (no case folding) and returns a fully-populated Route. Named distinctly from Data's
// NewRoute(Route) constructor, which wraps an already-built Route as a
// tagged union value instead of building one from segment names.
func BuildRoute(module, class, action, param string) Route {
	return Route{
		Module:   module,
		Class:    class,
		Action:   action,
		ModuleID: FNV1a64(module),
		ClassID:  FNV1a64(class),
		ActionID: FNV1a64(action),
		Param:    param,
	}
}

// Redirect is a stored redirect target (spec §3, §4.F).
type Redirect struct {
	URL       string
	Permanent bool
}
