package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scimforge/gateway/scimproto"
)

// queryBuilder translates scimproto.QueryParams into a SELECT statement
// against a whole-resource JSON/JSONB column. Uses ? placeholders
// throughout so the caller can run the result through sqlx.Rebind for
// either Postgres or SQLite.
type queryBuilder struct {
	table       string
	dataColumn  string
	attrMapping map[string]string
	driver      string
	params      []any
}

func newQueryBuilder(table, dataColumn string, attrMapping map[string]string, driver string) *queryBuilder {
	return &queryBuilder{table: table, dataColumn: dataColumn, attrMapping: attrMapping, driver: driver}
}

func (qb *queryBuilder) nextParam(value any) string {
	qb.params = append(qb.params, value)
	return "?"
}

func (qb *queryBuilder) nameColumn() string {
	if qb.table == "users" {
		return "username"
	}
	return "display_name"
}

func (qb *queryBuilder) build(endpointID string, params scimproto.QueryParams) (string, []any) {
	qb.params = nil
	var query strings.Builder
	fmt.Fprintf(&query, "SELECT id, endpoint_id, %s, data, version, created_at, updated_at FROM %s WHERE endpoint_id = %s",
		qb.nameColumn(), qb.table, qb.nextParam(endpointID))

	if where := qb.buildWhereClause(params.Filter); where != "" {
		query.WriteString(" AND ")
		query.WriteString(where)
	}

	query.WriteString(" ")
	query.WriteString(qb.buildOrderClause(params.SortBy, params.SortOrder))

	if pagination := qb.buildPaginationClause(params.StartIndex, params.Count); pagination != "" {
		query.WriteString(" ")
		query.WriteString(pagination)
	}

	return query.String(), qb.params
}

func (qb *queryBuilder) buildCount(endpointID string, params scimproto.QueryParams) (string, []any) {
	qb.params = nil
	var query strings.Builder
	fmt.Fprintf(&query, "SELECT COUNT(*) FROM %s WHERE endpoint_id = %s", qb.table, qb.nextParam(endpointID))

	if where := qb.buildWhereClause(params.Filter); where != "" {
		query.WriteString(" AND ")
		query.WriteString(where)
	}

	return query.String(), qb.params
}

func (qb *queryBuilder) buildWhereClause(filter string) string {
	if filter == "" {
		return ""
	}
	parser := scimproto.NewFilterParser(filter)
	parsed, err := parser.Parse()
	if err != nil || parsed == nil {
		// Untranslatable filter: fall back to returning the endpoint's
		// full set and let the caller re-filter in memory.
		return ""
	}
	return qb.filterToSQL(parsed)
}

// canPushDown reports whether filter can be translated to a SQL WHERE
// clause. The caller falls back to an in-memory evaluator over the
// endpoint's full set when it cannot, so push-down filters remain a
// pure optimization rather than a correctness requirement.
func (qb *queryBuilder) canPushDown(filter string) bool {
	if filter == "" {
		return true
	}
	parser := scimproto.NewFilterParser(filter)
	parsed, err := parser.Parse()
	if err != nil || parsed == nil {
		return false
	}
	return qb.filterToSQL(parsed) != ""
}

func (qb *queryBuilder) filterToSQL(filter scimproto.Filter) string {
	switch f := filter.(type) {
	case *scimproto.AttributeExpression:
		return qb.attributeExpressionToSQL(f)
	case *scimproto.LogicalExpression:
		return qb.logicalExpressionToSQL(f)
	case *scimproto.GroupExpression:
		inner := qb.filterToSQL(f.Filter)
		if inner == "" {
			return ""
		}
		return "(" + inner + ")"
	}
	return ""
}

func (qb *queryBuilder) attributeExpressionToSQL(expr *scimproto.AttributeExpression) string {
	sqlPath := qb.sqlPath(expr.AttributePath)
	if sqlPath == "" {
		return ""
	}
	switch expr.Operator {
	case "eq":
		return qb.equalityClause(sqlPath, expr.Value, true)
	case "ne":
		return qb.equalityClause(sqlPath, expr.Value, false)
	case "co":
		return qb.likeClause(sqlPath, expr.Value, "%%%s%%")
	case "sw":
		return qb.likeClause(sqlPath, expr.Value, "%s%%")
	case "ew":
		return qb.likeClause(sqlPath, expr.Value, "%%%s")
	case "pr":
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", sqlPath, sqlPath)
	case "gt":
		return qb.comparisonClause(sqlPath, expr.Value, ">")
	case "ge":
		return qb.comparisonClause(sqlPath, expr.Value, ">=")
	case "lt":
		return qb.comparisonClause(sqlPath, expr.Value, "<")
	case "le":
		return qb.comparisonClause(sqlPath, expr.Value, "<=")
	}
	return ""
}

func (qb *queryBuilder) logicalExpressionToSQL(expr *scimproto.LogicalExpression) string {
	switch expr.Operator {
	case "and":
		left, right := qb.filterToSQL(expr.Left), qb.filterToSQL(expr.Right)
		if left == "" || right == "" {
			return ""
		}
		return fmt.Sprintf("(%s AND %s)", left, right)
	case "or":
		left, right := qb.filterToSQL(expr.Left), qb.filterToSQL(expr.Right)
		if left == "" || right == "" {
			return ""
		}
		return fmt.Sprintf("(%s OR %s)", left, right)
	case "not":
		inner := qb.filterToSQL(expr.Left)
		if inner == "" {
			return ""
		}
		return fmt.Sprintf("NOT (%s)", inner)
	}
	return ""
}

// sqlPath converts a SCIM attribute path to either a mapped projected
// column or a JSON path extraction against the data column. Postgres
// uses ->>'x'; SQLite's json_extract emulates the same thing.
func (qb *queryBuilder) sqlPath(attrPath string) string {
	normalized := strings.ToLower(attrPath)
	if col, ok := qb.attrMapping[normalized]; ok {
		return col
	}

	parts := strings.Split(attrPath, ".")
	if qb.driver == "postgres" {
		var path strings.Builder
		path.WriteString(qb.dataColumn)
		for i, part := range parts {
			if i == len(parts)-1 {
				fmt.Fprintf(&path, "->>'%s'", part)
			} else {
				fmt.Fprintf(&path, "->'%s'", part)
			}
		}
		return path.String()
	}

	return fmt.Sprintf("json_extract(%s, '$.%s')", qb.dataColumn, attrPath)
}

func (qb *queryBuilder) equalityClause(sqlPath string, value any, equal bool) string {
	op := "="
	if !equal {
		op = "<>"
	}
	switch v := value.(type) {
	case string:
		param := qb.nextParam(strings.ToLower(v))
		return fmt.Sprintf("LOWER(%s) %s %s", sqlPath, op, param)
	case bool:
		param := qb.nextParam(strconv.FormatBool(v))
		return fmt.Sprintf("%s %s %s", sqlPath, op, param)
	case nil:
		if equal {
			return fmt.Sprintf("%s IS NULL", sqlPath)
		}
		return fmt.Sprintf("%s IS NOT NULL", sqlPath)
	default:
		param := qb.nextParam(fmt.Sprintf("%v", v))
		return fmt.Sprintf("%s %s %s", sqlPath, op, param)
	}
}

func (qb *queryBuilder) likeClause(sqlPath string, value any, pattern string) string {
	strVal, ok := value.(string)
	if !ok {
		return ""
	}
	escaped := escapeLikePattern(strVal)
	param := qb.nextParam(strings.ToLower(fmt.Sprintf(pattern, escaped)))
	return fmt.Sprintf("LOWER(%s) LIKE %s", sqlPath, param)
}

func (qb *queryBuilder) comparisonClause(sqlPath string, value any, op string) string {
	param := qb.nextParam(fmt.Sprintf("%v", value))
	return fmt.Sprintf("(%s) %s %s", sqlPath, op, param)
}

func (qb *queryBuilder) buildOrderClause(sortBy, sortOrder string) string {
	if sortBy == "" {
		return "ORDER BY created_at ASC"
	}
	sqlPath := qb.sqlPath(sortBy)
	direction := "ASC"
	if strings.EqualFold(sortOrder, "descending") {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", sqlPath, direction)
}

func (qb *queryBuilder) buildPaginationClause(startIndex, count int) string {
	var parts []string
	if count > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", count))
	}
	if startIndex > 1 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", startIndex-1))
	}
	return strings.Join(parts, " ")
}

func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

var userAttributeMapping = map[string]string{
	"id":       "id",
	"username": "username",
}

var groupAttributeMapping = map[string]string{
	"id":          "id",
	"displayname": "display_name",
}
