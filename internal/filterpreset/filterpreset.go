// Package filterpreset compiles saved condition trees into SQL WHERE
// fragments. Field names pass through a per-scope allow-list, so a
// preset can never reference a column the store did not offer.
package filterpreset

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sublarr/sublarr/internal/errkind"
)

// Scopes a preset may target.
const (
	ScopeWanted  = "wanted"
	ScopeLibrary = "library"
	ScopeHistory = "history"
)

const maxDepth = 8

// node is one condition-tree element: either a branch (Operator +
// Conditions) or a leaf (Field + Op + Value).
type node struct {
	Operator   string          `json:"operator,omitempty"`
	Conditions []node          `json:"conditions,omitempty"`
	Field      string          `json:"field,omitempty"`
	Op         string          `json:"op,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// allowedFields maps scope -> preset field name -> SQL column.
var allowedFields = map[string]map[string]string{
	ScopeWanted: {
		"status":            "status",
		"item_kind":         "item_kind",
		"target_language":   "target_language",
		"subtitle_type":     "subtitle_type",
		"instance_name":     "instance_name",
		"upgrade_candidate": "upgrade_candidate",
		"attempts":          "attempts",
		"title":             "title",
		"file_path":         "file_path",
		"season":            "season",
		"episode":           "episode",
		"year":              "year",
	},
	ScopeLibrary: {
		"title":    "normalized_title",
		"year":     "year",
		"is_anime": "is_anime",
	},
	ScopeHistory: {
		"provider":      "provider",
		"language":      "language",
		"subtitle_type": "subtitle_type",
		"score":         "score",
		"file_path":     "file_path",
	},
}

var allowedOps = map[string]string{
	"eq":       "=",
	"ne":       "!=",
	"lt":       "<",
	"lte":      "<=",
	"gt":       ">",
	"gte":      ">=",
	"contains": "LIKE",
	"in":       "IN",
}

// Compiled is a WHERE fragment with its bind arguments, ready for the
// store's Extra filter slot.
type Compiled struct {
	Where string
	Args  []any
}

// Compile parses a condition tree and renders it for the given scope.
// Unknown fields, operators, and malformed trees return a configuration
// error the API layer maps to a 400; nothing unvalidated reaches SQL.
func Compile(scope, conditionTree string) (*Compiled, error) {
	fields, ok := allowedFields[scope]
	if !ok {
		return nil, errkind.Newf(errkind.Configuration, "unknown preset scope %q", scope)
	}

	var root node
	if err := json.Unmarshal([]byte(conditionTree), &root); err != nil {
		return nil, errkind.Newf(errkind.Configuration, "parse condition tree: %w", err)
	}

	c := &Compiled{}
	where, err := c.render(root, fields, 0)
	if err != nil {
		return nil, err
	}
	c.Where = where
	return c, nil
}

func (c *Compiled) render(n node, fields map[string]string, depth int) (string, error) {
	if depth > maxDepth {
		return "", errkind.Newf(errkind.Configuration, "condition tree exceeds depth %d", maxDepth)
	}

	if n.Operator != "" {
		op := strings.ToUpper(n.Operator)
		if op != "AND" && op != "OR" {
			return "", errkind.Newf(errkind.Configuration, "unknown operator %q", n.Operator)
		}
		if len(n.Conditions) == 0 {
			return "", errkind.Newf(errkind.Configuration, "%s branch has no conditions", n.Operator)
		}
		parts := make([]string, 0, len(n.Conditions))
		for _, child := range n.Conditions {
			part, err := c.render(child, fields, depth+1)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " "+op+" ") + ")", nil
	}

	return c.renderLeaf(n, fields)
}

func (c *Compiled) renderLeaf(n node, fields map[string]string) (string, error) {
	column, ok := fields[n.Field]
	if !ok {
		return "", errkind.Newf(errkind.Configuration, "field %q not allowed", n.Field)
	}
	sqlOp, ok := allowedOps[n.Op]
	if !ok {
		return "", errkind.Newf(errkind.Configuration, "operator %q not allowed", n.Op)
	}

	switch n.Op {
	case "in":
		var values []any
		if err := json.Unmarshal(n.Value, &values); err != nil {
			return "", errkind.Newf(errkind.Configuration, "field %q: in wants an array: %w", n.Field, err)
		}
		if len(values) == 0 {
			return "", errkind.Newf(errkind.Configuration, "field %q: empty in list", n.Field)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = "?"
			c.Args = append(c.Args, scalar(v))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil

	case "contains":
		var s string
		if err := json.Unmarshal(n.Value, &s); err != nil {
			return "", errkind.Newf(errkind.Configuration, "field %q: contains wants a string: %w", n.Field, err)
		}
		c.Args = append(c.Args, "%"+escapeLike(s)+"%")
		return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", column), nil

	default:
		var v any
		if err := json.Unmarshal(n.Value, &v); err != nil {
			return "", errkind.Newf(errkind.Configuration, "field %q: bad value: %w", n.Field, err)
		}
		c.Args = append(c.Args, scalar(v))
		return fmt.Sprintf("%s %s ?", column, sqlOp), nil
	}
}

// scalar normalizes JSON decode types for the SQL driver: bools become
// 0/1 to match the store's integer columns.
func scalar(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
