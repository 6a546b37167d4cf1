package htmlcodec

import (
	"reflect"
	"sort"
)

// Flatten walks a nested object and collects every string leaf stored under a
// language key. Map fields are visited in sorted key order so output is
// deterministic. A container that reappears on its own walk path is a cycle
// and gets skipped rather than walked again; shared subtrees reached over
// distinct paths are collected once per path.
func Flatten(obj any, langKeys []string) ([]Entry, error) {
	langs := make(map[string]bool, len(langKeys))
	for _, k := range langKeys {
		langs[k] = true
	}
	w := &walker{langs: langs, seen: map[uintptr]bool{}}
	w.walk(obj, nil, false)
	return w.entries, nil
}

type walker struct {
	langs   map[string]bool
	seen    map[uintptr]bool
	entries []Entry
}

func (w *walker) walk(v any, path Path, underLang bool) {
	switch val := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if w.seen[ptr] {
			return
		}
		w.seen[ptr] = true
		defer delete(w.seen, ptr)

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.walk(val[k], append(path.clone(), Key(k)), w.langs[k])
		}
	case []any:
		if len(val) == 0 {
			return
		}
		ptr := reflect.ValueOf(val).Pointer()
		if w.seen[ptr] {
			return
		}
		w.seen[ptr] = true
		defer delete(w.seen, ptr)

		for i, item := range val {
			w.walk(item, append(path.clone(), Index(i)), underLang)
		}
	case string:
		if underLang && val != "" {
			w.entries = append(w.entries, Entry{Path: path, Text: val})
		}
	}
}
