package action

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/data"
)

// Templates is the immutable per-(module,class) raw template table:
// moduleID -> classID -> nameID -> file content. There is no
// html.rs-equivalent file in the retrieval pack to ground the exact
// on-disk convention against (the Non-goal in SPEC_FULL §C explicitly
// drops template *syntax*, only the Bundle/render *contract* is kept),
// so the directory layout below is inferred by analogy to lang.Load's
// <root>/app/<module>/<class>/ walk: one file per template, named
// "<name>.html", content stored verbatim with no parsing.
type Templates struct {
	List map[uint64]map[uint64]map[uint64][]byte
}

// LoadTemplates walks <root>/app/<module>/<class>/*.html and returns a
// Templates bundle. A per-directory read error is logged and that
// subtree skipped, matching lang.Load's warn-and-continue walk.
func LoadTemplates(root string, log *zap.Logger) *Templates {
	if log == nil {
		log = zap.NewNop()
	}

	appDir := filepath.Join(root, "app")
	modules, err := os.ReadDir(appDir)
	if err != nil {
		log.Warn("action: cannot read app directory", zap.String("path", appDir), zap.Error(err))
		return &Templates{List: map[uint64]map[uint64]map[uint64][]byte{}}
	}

	list := make(map[uint64]map[uint64]map[uint64][]byte)
	for _, moduleEntry := range modules {
		if !moduleEntry.IsDir() {
			continue
		}
		moduleName := moduleEntry.Name()
		moduleID := data.FNV1a64(moduleName)
		modulePath := filepath.Join(appDir, moduleName)

		classes, err := os.ReadDir(modulePath)
		if err != nil {
			log.Warn("action: cannot read module directory", zap.String("path", modulePath), zap.Error(err))
			continue
		}
		for _, classEntry := range classes {
			if !classEntry.IsDir() {
				continue
			}
			className := classEntry.Name()
			classID := data.FNV1a64(className)
			classPath := filepath.Join(modulePath, className)

			files, err := os.ReadDir(classPath)
			if err != nil {
				log.Warn("action: cannot read class directory", zap.String("path", classPath), zap.Error(err))
				continue
			}
			for _, fileEntry := range files {
				if fileEntry.IsDir() {
					continue
				}
				name := fileEntry.Name()
				if !strings.HasSuffix(name, ".html") || len(name) <= len(".html") {
					continue
				}
				content, err := os.ReadFile(filepath.Join(classPath, name))
				if err != nil {
					log.Warn("action: cannot read template file", zap.String("path", filepath.Join(classPath, name)), zap.Error(err))
					continue
				}
				templateName := strings.TrimSuffix(name, ".html")
				nameID := data.FNV1a64(templateName)

				byClass, ok := list[moduleID]
				if !ok {
					byClass = make(map[uint64]map[uint64][]byte)
					list[moduleID] = byClass
				}
				byName, ok := byClass[classID]
				if !ok {
					byName = make(map[uint64][]byte)
					byClass[classID] = byName
				}
				byName[nameID] = content
			}
		}
	}

	return &Templates{List: list}
}

// ClassMap returns the nameID -> content map for one (moduleID,
// classID) scope, the granularity the Action Engine swaps on a
// cross-module/class invocation (spec §4.G).
func (t *Templates) ClassMap(moduleID, classID uint64) (map[uint64][]byte, bool) {
	if t == nil {
		return nil, false
	}
	byClass, ok := t.List[moduleID]
	if !ok {
		return nil, false
	}
	m, ok := byClass[classID]
	return m, ok
}
