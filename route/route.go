// Package route implements the Route Resolver (spec §4.F): turns a
// request URL into either a stored Redirect or a (module, class,
// action, param) Route, checking the tag cache first, falling back to
// a database lookup memoized into the cache, and finally falling back
// to positional URL parsing. Grounded on
// original_source/src/sys/action.rs's extract_route (the cache-then-db
// lookup order and its negative-result caching) and
// original_source/src/sys/route.rs (the default routes and the
// splitn(5, '/') positional table).
package route

import (
	"context"
	"strings"

	"github.com/tryteex/tiny-web-sub001/cache"
	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/pool"
)

// indexID, notFoundID, errID and installID are the FNV-1a-64 IDs of the
// well-known names the default routes use, computed once.
var (
	indexID    = data.FNV1a64("index")
	notFoundID = data.FNV1a64("not_found")
	errID      = data.FNV1a64("err")
	installID  = data.FNV1a64("install")
)

// DefaultIndex is index/index/index, the root route.
func DefaultIndex() data.Route {
	return data.Route{Module: "index", Class: "index", Action: "index", ModuleID: indexID, ClassID: indexID, ActionID: indexID}
}

// DefaultNotFound is index/index/not_found. Resolve does not return it:
// a URL with no stored route falls back to ParsePositional.
func DefaultNotFound() data.Route {
	return data.Route{Module: "index", Class: "index", Action: "not_found", ModuleID: indexID, ClassID: indexID, ActionID: notFoundID}
}

// DefaultErr is index/index/err. Resolve does not return it: a failed
// database lookup is cached as a miss and falls back to ParsePositional.
func DefaultErr() data.Route {
	return data.Route{Module: "index", Class: "index", Action: "err", ModuleID: indexID, ClassID: indexID, ActionID: errID}
}

// DefaultInstall is index/install/index, the installer entry point.
func DefaultInstall() data.Route {
	return data.Route{Module: "index", Class: "install", Action: "index", ModuleID: indexID, ClassID: installID, ActionID: indexID}
}

// Resolver resolves request URLs to routes using a cache in front of a
// connection pool.
type Resolver struct {
	Cache *cache.Cache
	Pool  *pool.Pool
}

// New returns a Resolver backed by c and p.
func New(c *cache.Cache, p *pool.Pool) *Resolver {
	return &Resolver{Cache: c, Pool: p}
}

// Resolve looks up url. If a stored redirect applies, it is returned
// as the second value and the first is the zero Route. Otherwise a
// Route is returned (from cache, from the database, or from positional
// parsing, in that order) and the redirect return is nil.
func (r *Resolver) Resolve(ctx context.Context, url string) (data.Route, *data.Redirect) {
	if redirect := r.lookupRedirect(ctx, url); redirect != nil {
		return data.Route{}, redirect
	}

	if rt, ok := r.lookupRoute(ctx, url); ok {
		return rt, nil
	}

	return ParsePositional(url), nil
}

func (r *Resolver) lookupRedirect(ctx context.Context, url string) *data.Redirect {
	key := "redirect:" + url
	if v, ok := r.Cache.Get(key); ok {
		if v.IsNone() {
			return nil
		}
		if rd, ok := v.RedirectValue(); ok {
			return &rd
		}
		return nil
	}

	if r.Pool == nil {
		r.Cache.Set(key, data.None)
		return nil
	}

	rows, err := r.Pool.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT target, permanent FROM redirect WHERE url = $1", url)
	})
	if err != nil || len(rows) == 0 {
		r.Cache.Set(key, data.None)
		return nil
	}

	target, _ := rows[0]["target"].(string)
	permanent, _ := rows[0]["permanent"].(bool)
	rd := data.Redirect{URL: target, Permanent: permanent}
	r.Cache.Set(key, data.NewRedirect(rd))
	return &rd
}

func (r *Resolver) lookupRoute(ctx context.Context, url string) (data.Route, bool) {
	key := "route:" + url
	if v, ok := r.Cache.Get(key); ok {
		if v.IsNone() {
			return data.Route{}, false
		}
		return v.Route()
	}

	if r.Pool == nil {
		r.Cache.Set(key, data.None)
		return data.Route{}, false
	}

	rows, err := r.Pool.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT module, class, action, param, lang_id FROM route WHERE url = $1", url)
	})
	if err != nil || len(rows) == 0 {
		r.Cache.Set(key, data.None)
		return data.Route{}, false
	}

	row := rows[0]
	module, _ := row["module"].(string)
	class, _ := row["class"].(string)
	action, _ := row["action"].(string)
	param, _ := row["param"].(string)
	rt := data.BuildRoute(module, class, action, param)
	if langID, ok := row["lang_id"].(int64); ok {
		rt.HasLangID = true
		rt.LangID = uint64(langID)
	}

	r.Cache.Set(key, data.NewRoute(rt))
	return rt, true
}

// ParsePositional falls back to splitting url into at most 5 '/'
// separated segments: /m/c/a/p, where p (the 5th piece) keeps any
// further slashes verbatim. Missing trailing segments default to
// "index"; more than 5 pieces is impossible since the split caps at 5.
func ParsePositional(url string) data.Route {
	if url == "/" || url == "" {
		return DefaultIndex()
	}

	parts := strings.SplitN(url, "/", 5)
	switch len(parts) {
	case 2:
		return data.BuildRoute(parts[1], "index", "index", "")
	case 3:
		return data.BuildRoute(parts[1], parts[2], "index", "")
	case 4:
		return data.BuildRoute(parts[1], parts[2], parts[3], "")
	case 5:
		return data.BuildRoute(parts[1], parts[2], parts[3], parts[4])
	default:
		return DefaultIndex()
	}
}
