// Package action implements the Action Engine (spec §4.G): per-request
// dispatch of a (module, class, action) triple to a registered
// Handler, with access-control caching, reentrant internal calls, and
// template/translation bundle swapping across module/class boundaries.
// Grounded on original_source/src/sys/action.rs's Action struct and its
// start_route/invoke/get_access/not_found methods, translated from
// Rust's Option<Arc<...>>-swap-on-the-stack pattern into explicit
// save/restore of plain Go values around each handler call (spec §9
// "Model the context as an explicit value threaded through handler
// calls; save/restore ... on the stack at entry and exit. Do not use
// thread-locals.").
package action

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/cache"
	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/lang"
	"github.com/tryteex/tiny-web-sub001/pool"
	"github.com/tryteex/tiny-web-sub001/route"
	"github.com/tryteex/tiny-web-sub001/session"
)

// Deps bundles the process-wide, immutable-after-startup collaborators
// every Action needs. One Deps is shared by every in-flight request.
type Deps struct {
	Engine    *Engine
	Cache     *cache.Cache
	Pool      *pool.Pool
	Route     *route.Resolver
	Templates *Templates
	Lang      *lang.Bundle
	Salt      string
	Log       *zap.Logger
}

// Action is the per-request execution context (spec §4.G). The zero
// value is not usable; construct with New.
type Action struct {
	Request  data.Request
	Response data.Response
	Session  session.Session

	values map[int64]data.Data

	// Start route: the (module, class, action) the URL resolved to.
	Module     string
	Class      string
	ActionName string
	Param      string
	ModuleID   uint64
	ClassID    uint64
	ActionID   uint64

	// Current route: what invoke() has swapped in for the handler
	// presently running, which may differ from the start route once a
	// handler calls Load into another module/class.
	CurrentModuleID uint64
	CurrentClassID  uint64

	html map[uint64][]byte
	lang map[uint64]string

	Internal bool

	deps Deps
}

// New resolves req's URL via deps.Route and, absent a redirect, builds
// an Action ready to Run. A non-nil redirect means the caller should
// write that redirect and skip Run entirely (spec §4.G "extract_route").
func New(ctx context.Context, deps Deps, req data.Request, sess session.Session) (*Action, *data.Redirect) {
	rt, redirect := deps.Route.Resolve(ctx, req.URL)
	if redirect != nil {
		return nil, redirect
	}

	if rt.HasLangID {
		sess.SetLangID(rt.LangID)
	}

	html, _ := deps.Templates.ClassMap(rt.ModuleID, rt.ClassID)
	langMap, _ := deps.Lang.ClassMap(sess.LangID, rt.ModuleID, rt.ClassID)

	return &Action{
		Request:  req,
		Response: data.NewResponse(),
		Session:  sess,
		values:   make(map[int64]data.Data),

		Module:     rt.Module,
		Class:      rt.Class,
		ActionName: rt.Action,
		Param:      rt.Param,
		ModuleID:   rt.ModuleID,
		ClassID:    rt.ClassID,
		ActionID:   rt.ActionID,

		CurrentModuleID: rt.ModuleID,
		CurrentClassID:  rt.ClassID,
		html:            html,
		lang:            langMap,

		deps: deps,
	}, nil
}

// Run executes the start route's controller (spec §4.G "run").
func (a *Action) Run(ctx context.Context) Answer {
	return a.startRoute(ctx, a.ModuleID, a.ClassID, a.ActionID, a.Param, false)
}

// Load invokes another controller as an internal call (spec §4.G
// "Reentrancy"). An internal call never redirects on access denial —
// it yields Answer{Kind: KindNone} instead — and, when the call
// produces a String answer, stores it under key in this Action's
// template variables for the caller's own Render to pick up.
func (a *Action) Load(ctx context.Context, key, module, class, actionName string, param string) {
	res := a.startRoute(ctx, data.FNV1a64(module), data.FNV1a64(class), data.FNV1a64(actionName), param, true)
	if res.Kind == KindString {
		a.Set(key, data.NewString(res.Str))
	}
}

// startRoute checks access before handing off to invoke; an access
// denial redirects to the not-found URL unless the call is itself
// internal, or already targets the not-found action (spec §4.G,
// §7 "Access denied").
func (a *Action) startRoute(ctx context.Context, moduleID, classID, actionID uint64, param string, internal bool) Answer {
	if a.getAccess(ctx, moduleID, classID, actionID) {
		return a.invoke(ctx, moduleID, classID, actionID, param, internal)
	}
	if internal {
		return None()
	}
	if !(moduleID == indexIDValue && classID == indexIDValue && actionID == notFoundIDValue) {
		a.Response.SetRedirect(a.notFound(ctx), false)
	}
	return None()
}

// invoke dispatches to the registered Handler, swapping the current
// module/class context (and, when it changes, the template and
// translation bundles) around the call (spec §4.G "Invocation").
func (a *Action) invoke(ctx context.Context, moduleID, classID, actionID uint64, param string, internal bool) Answer {
	h, ok := a.deps.Engine.lookup(moduleID, classID, actionID)
	if !ok {
		return None()
	}

	savedInternal := a.Internal
	savedParam := a.Param
	a.Internal = internal
	a.Param = param

	if a.CurrentModuleID == moduleID && a.CurrentClassID == classID {
		res := h(a)
		a.Internal = savedInternal
		a.Param = savedParam
		return res
	}

	savedHTML := a.html
	if htmlMap, ok := a.deps.Templates.ClassMap(moduleID, classID); ok {
		a.html = htmlMap
	} else {
		a.html = nil
	}
	savedLang := a.lang
	if langMap, ok := a.deps.Lang.ClassMap(a.Session.LangID, moduleID, classID); ok {
		a.lang = langMap
	} else {
		a.lang = nil
	}
	savedModuleID := a.CurrentModuleID
	savedClassID := a.CurrentClassID
	a.CurrentModuleID = moduleID
	a.CurrentClassID = classID

	res := h(a)

	a.CurrentModuleID = savedModuleID
	a.CurrentClassID = savedClassID
	a.html = savedHTML
	a.lang = savedLang
	a.Internal = savedInternal
	a.Param = savedParam
	return res
}

// getAccess consults cache["auth:<role_id>:<m>:<c>:<a>"], falling back
// to a database query that returns a single boolean row; both the
// allow and deny outcomes are cached (spec §4.G "Access check").
func (a *Action) getAccess(ctx context.Context, moduleID, classID, actionID uint64) bool {
	key := fmt.Sprintf("auth:%d:%d:%d:%d", a.Session.RoleID, moduleID, classID, actionID)
	if v, ok := a.deps.Cache.Get(key); ok {
		if allowed, ok := v.Bool(); ok {
			return allowed
		}
	}

	if a.deps.Pool == nil {
		a.deps.Cache.Set(key, data.NewBool(false))
		return false
	}

	rows, err := a.deps.Pool.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT access FROM role_access WHERE role_id = $1 AND module_id = $2 AND class_id = $3 AND action_id = $4", a.Session.RoleID, moduleID, classID, actionID)
	})
	if err != nil {
		return false
	}
	if len(rows) != 1 {
		a.deps.Cache.Set(key, data.NewBool(false))
		return false
	}
	allowed, _ := rows[0]["access"].(bool)
	a.deps.Cache.Set(key, data.NewBool(allowed))
	return allowed
}

// notFound resolves the redirect target for an unreachable route via
// cache["404:<lang_id>"], falling back to a database lookup and
// finally the hardcoded default (spec §4.G "Not-found resolution").
func (a *Action) notFound(ctx context.Context) string {
	const fallback = "/index/index/not_found"
	key := fmt.Sprintf("404:%d", a.Session.LangID)

	if v, ok := a.deps.Cache.Get(key); ok {
		if url, ok := v.String(); ok {
			return url
		}
		return fallback
	}

	if a.deps.Pool == nil {
		return fallback
	}

	rows, err := a.deps.Pool.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT url FROM not_found_route WHERE lang_id = $1", a.Session.LangID)
	})
	if err != nil || len(rows) == 0 {
		a.deps.Cache.Set(key, data.None)
		return fallback
	}
	url, _ := rows[0]["url"].(string)
	a.deps.Cache.Set(key, data.NewString(url))
	return url
}

// Lang translates text against the currently scoped translation
// bundle, returning text unchanged if no bundle or key is loaded
// (spec §4.G "lang").
func (a *Action) Lang(text string) string {
	if a.lang == nil {
		return text
	}
	if v, ok := a.lang[data.FNV1a64(text)]; ok {
		return v
	}
	return text
}

// Set stores value as a template variable under name (spec §4.G "set").
func (a *Action) Set(name string, value data.Data) {
	a.values[int64(data.FNV1a64(name))] = value
}

// Render looks up name in the currently scoped template bundle and
// returns its raw bytes verbatim. There is no template syntax to
// interpolate (SPEC_FULL §C Non-goals: "the Bundle/render contract is
// implemented; template syntax is not") — Set values are available to
// a caller that wants to build its own answer, but Render itself does
// no substitution (spec §4.G "Rendering").
func (a *Action) Render(name string) Answer {
	if a.html == nil {
		return None()
	}
	content, ok := a.html[data.FNV1a64(name)]
	if !ok {
		return None()
	}
	return BytesAnswer(content)
}

// Get reads back a template variable previously stored by Set or by an
// internal Load call.
func (a *Action) Get(name string) (data.Data, bool) {
	v, ok := a.values[int64(data.FNV1a64(name))]
	return v, ok
}

// Stop persists the session if it changed and removes every uploaded
// temp file, unconditionally (spec §5 "Temp files are owned by the
// request and deleted unconditionally at request end"). Grounded on
// original_source/src/sys/action.rs's stop().
func (a *Action) Stop(ctx context.Context) error {
	err := session.Save(ctx, a.deps.Pool, &a.Session, a.Request.IP.String(), a.Request.Agent)
	CleanFile(a.uploadedFiles(), a.deps.Log)
	return err
}

func (a *Action) uploadedFiles() []string {
	paths := make([]string, 0, len(a.Request.Input.File))
	for _, f := range a.Request.Input.File {
		paths = append(paths, f.Tmp)
	}
	return paths
}

// CleanFile removes every path in files, logging a warning for any
// that fails (spec §7 "Stream errors ... log at warning"), matching
// original_source's clean_file — used both by Stop and by the caller
// that aborted an Action before it was fully built (New returned a
// redirect, but the decoder already spilled uploads to disk).
func CleanFile(files []string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Warn("action: failed to remove temp file", zap.String("path", f), zap.Error(err))
		}
	}
}

var (
	indexIDValue    = data.FNV1a64("index")
	notFoundIDValue = data.FNV1a64("not_found")
)
