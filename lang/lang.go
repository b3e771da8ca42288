// Package lang loads translation bundles (spec §6 "Translation files"):
// a directory walk of <root>/app/<module>/<class>/<code>.lang files,
// each a sequence of key=value lines, built once at startup into an
// immutable map shared by reference across every request (spec §5
// "template and translation dictionaries are immutable after
// startup"). Grounded on original_source/src/sys/lang.rs, which this
// translates nearly line for line: same three-level directory walk,
// same "file name is exactly 2 chars + .lang" recognition rule, same
// key=value line format.
package lang

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/data"
)

// Item describes one configured language (spec §6, mirrors
// original_source's LangItem).
type Item struct {
	ID   uint64
	Lang string // ISO 639-1, e.g. "en"
	Code string // ISO 3166 alpha-2, e.g. "us"
	Name string // native name
}

// Bundle is the immutable translation table: langID -> moduleID ->
// classID -> keyID -> translated string.
type Bundle struct {
	Items   []Item
	List    map[uint64]map[uint64]map[uint64]map[uint64]string
	Default uint64
}

// Load walks <root>/app/ and builds a Bundle from every recognized
// <module>/<class>/<code>.lang file. items is the language list the
// caller supplies (cmd/tiny loads it from the enabled-language database
// query); defaultCode selects Bundle.Default.
// Any per-directory read error is logged and that subtree is skipped,
// matching original_source's warn-and-continue walk.
func Load(root, defaultCode string, items []Item, log *zap.Logger) *Bundle {
	if log == nil {
		log = zap.NewNop()
	}
	if len(items) == 0 {
		log.Warn("lang: no languages configured")
		return &Bundle{List: map[uint64]map[uint64]map[uint64]map[uint64]string{}}
	}

	codeToID := make(map[string]uint64, len(items))
	var defaultID uint64
	for _, it := range items {
		codeToID[it.Code] = it.ID
		if it.Code == defaultCode {
			defaultID = it.ID
		}
	}

	appDir := filepath.Join(root, "app")
	modules, err := os.ReadDir(appDir)
	if err != nil {
		log.Warn("lang: cannot read app directory", zap.String("path", appDir), zap.Error(err))
		return &Bundle{Items: items, List: map[uint64]map[uint64]map[uint64]map[uint64]string{}, Default: defaultID}
	}

	list := make(map[uint64]map[uint64]map[uint64]map[uint64]string)
	for _, moduleEntry := range modules {
		if !moduleEntry.IsDir() {
			continue
		}
		moduleName := moduleEntry.Name()
		moduleID := data.FNV1a64(moduleName)
		modulePath := filepath.Join(appDir, moduleName)

		classes, err := os.ReadDir(modulePath)
		if err != nil {
			log.Warn("lang: cannot read module directory", zap.String("path", modulePath), zap.Error(err))
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
				log.Warn("lang: cannot read class directory", zap.String("path", classPath), zap.Error(err))
				continue
			}
			for _, fileEntry := range files {
				if fileEntry.IsDir() {
					continue
				}
				name := fileEntry.Name()
				if len(name) != 7 || !strings.HasSuffix(name, ".lang") {
					continue
				}
				code := name[:2]
				langID, ok := codeToID[code]
				if !ok {
					continue
				}
				content, err := os.ReadFile(filepath.Join(classPath, name))
				if err != nil {
					continue
				}
				loadLines(list, langID, moduleID, classID, string(content))
			}
		}
	}

	return &Bundle{Items: items, List: list, Default: defaultID}
}

func loadLines(list map[uint64]map[uint64]map[uint64]map[uint64]string, langID, moduleID, classID uint64, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		byModule, ok := list[langID]
		if !ok {
			byModule = make(map[uint64]map[uint64]map[uint64]string)
			list[langID] = byModule
		}
		byClass, ok := byModule[moduleID]
		if !ok {
			byClass = make(map[uint64]map[uint64]string)
			byModule[moduleID] = byClass
		}
		byKey, ok := byClass[classID]
		if !ok {
			byKey = make(map[uint64]string)
			byClass[classID] = byKey
		}
		byKey[data.FNV1a64(key)] = val
	}
}

// Lookup returns the translation of key for (langID, moduleID,
// classID), or ok=false if no bundle or key exists for that scope.
func (b *Bundle) Lookup(langID, moduleID, classID uint64, key string) (string, bool) {
	m, ok := b.ClassMap(langID, moduleID, classID)
	if !ok {
		return "", false
	}
	v, ok := m[data.FNV1a64(key)]
	return v, ok
}

// ClassMap returns the keyID->value map for one (langID, moduleID,
// classID) scope, the same granularity the Action Engine caches for
// the duration it stays within one module/class (spec §4.G).
func (b *Bundle) ClassMap(langID, moduleID, classID uint64) (map[uint64]string, bool) {
	if b == nil {
		return nil, false
	}
	byModule, ok := b.List[langID]
	if !ok {
		return nil, false
	}
	byClass, ok := byModule[moduleID]
	if !ok {
		return nil, false
	}
	m, ok := byClass[classID]
	return m, ok
}
