package action

import "github.com/tryteex/tiny-web-sub001/data"

// Engine is the shared, immutable-after-startup
// module_id -> class_id -> action_id -> Handler dispatch map (spec
// §4.G). Grounded on original_source/src/sys/action.rs's ActMap
// (BTreeMap<i64, BTreeMap<i64, BTreeMap<i64, Act>>>); Register is only
// ever called during startup wiring, so no lock is needed once the
// server begins accepting connections, matching spec §5's "template
// and translation dictionaries are immutable after startup" treatment
// extended to the handler map itself.
type Engine struct {
	handlers map[uint64]map[uint64]map[uint64]Handler
}

// NewEngine returns an empty Engine ready for Register calls.
func NewEngine() *Engine {
	return &Engine{handlers: make(map[uint64]map[uint64]map[uint64]Handler)}
}

// Register wires h under the FNV-1a-64 IDs of module/class/actionName.
func (e *Engine) Register(module, class, actionName string, h Handler) {
	moduleID := data.FNV1a64(module)
	classID := data.FNV1a64(class)
	actionID := data.FNV1a64(actionName)

	byClass, ok := e.handlers[moduleID]
	if !ok {
		byClass = make(map[uint64]map[uint64]Handler)
		e.handlers[moduleID] = byClass
	}
	byAction, ok := byClass[classID]
	if !ok {
		byAction = make(map[uint64]Handler)
		byClass[classID] = byAction
	}
	byAction[actionID] = h
}

// lookup finds the handler for (moduleID, classID, actionID), if any.
func (e *Engine) lookup(moduleID, classID, actionID uint64) (Handler, bool) {
	byClass, ok := e.handlers[moduleID]
	if !ok {
		return nil, false
	}
	byAction, ok := byClass[classID]
	if !ok {
		return nil, false
	}
	h, ok := byAction[actionID]
	return h, ok
}
