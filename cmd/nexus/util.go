package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/internal/engine"
)

// openEngine opens the database at dbDir with the config layered from
// <dbDir>/config.toml plus NEXUS_* environment overrides (engine.LoadConfig),
// the same resolution path a production deployment driving the Engine
// façade through this CLI would go through.
func openEngine() (*engine.Engine, error) {
	cfg, err := engine.LoadConfig(dbDir)
	if err != nil {
		return nil, err
	}
	return engine.Open(dbDir, cfg)
}

// parseParams turns a repeated --param key=value flag into the map
// Engine.Execute's params argument expects. A value that parses as JSON
// (number, bool, null, quoted string, array, object) is decoded as such;
// anything else is kept as a raw string, so `--param name=Ada` and
// `--param age=30` both do the right thing without requiring quoting.
func parseParams(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--param %q is not of the form key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// parseProps turns a repeated --prop key=value flag into a property map
// for create-node, with the same JSON-or-string coercion as parseParams.
func parseProps(raw []string) (map[string]any, error) {
	return parseParams(raw)
}

// printRows renders a QueryResult as a simple whitespace-aligned table,
// the lowest-ceremony option appropriate for a local admin CLI (no color
// or terminal-width detection, unlike cmd/bd's richer UI layer, which is
// out of scope here per spec.md §1).
func printRows(columns []string, rows []map[string]any) {
	if len(columns) == 0 {
		return
	}
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(rows))
	for ri, row := range rows {
		cells[ri] = make([]string, len(columns))
		for ci, c := range columns {
			s := formatCell(row[c])
			cells[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}
	printRow(columns, widths)
	for _, row := range cells {
		printRow(row, widths)
	}
}

func printRow(cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = c + strings.Repeat(" ", widths[i]-len(c))
	}
	fmt.Println(strings.Join(parts, "  "))
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any:
		return formatEntityOrMap(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = formatCell(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatEntityOrMap distinguishes a node/relationship's {id,labels,props}
// or {id,type,start,end,props} shape (engine.fromExecValue's encoding)
// from a plain Cypher map value, so a RETURN of a node prints its labels
// and properties instead of raw Go map syntax.
func formatEntityOrMap(m map[string]any) string {
	if labels, ok := m["labels"].([]string); ok {
		return fmt.Sprintf("(:%s {%s})", strings.Join(labels, ":"), formatProps(m["props"]))
	}
	if typ, ok := m["type"].(string); ok {
		return fmt.Sprintf("[:%s {%s}]", typ, formatProps(m["props"]))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + formatCell(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatProps(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + formatCell(m[k])
	}
	return strings.Join(parts, ", ")
}
