package scimproto

import (
	"fmt"
	"maps"
	"strings"
)

// PatchProcessor evaluates SCIM PATCH operations (RFC 7644 Section
// 3.5.2) against a Resource's attribute map. Rather than navigating
// typed struct fields with reflection, this navigates
// map[string]any/[]any directly, since the payload itself is opaque
// JSON rather than a fixed Go struct.
type PatchProcessor struct{}

// NewPatchProcessor creates a new patch processor
func NewPatchProcessor() *PatchProcessor {
	return &PatchProcessor{}
}

// ApplyPatch applies a PATCH operation to a resource in place.
func (pp *PatchProcessor) ApplyPatch(resource *Resource, patch *PatchOp) error {
	for _, op := range patch.Operations {
		if err := pp.applyOperation(resource, op); err != nil {
			return err
		}
	}
	return nil
}

// MembershipFlags gates the group-member PATCH path: how many members
// a single add/remove operation may touch at once, and whether an
// empty replace may clear a group's membership entirely.
type MembershipFlags struct {
	AllowMultiAdd    bool
	AllowMultiRemove bool
	AllowRemoveAll   bool
}

// ApplyGroupPatch is ApplyPatch for Group resources: an operation
// whose path is the bare "members" attribute (no value-path filter)
// is routed through the membership flag gate instead of being treated
// as an ordinary payload mutation.
func (pp *PatchProcessor) ApplyGroupPatch(resource *Resource, patch *PatchOp, flags MembershipFlags) error {
	for _, op := range patch.Operations {
		if isBareMembersPath(op.Path) {
			if err := pp.applyMembersOp(resource, op, flags); err != nil {
				return err
			}
			continue
		}
		if err := pp.applyOperation(resource, op); err != nil {
			return err
		}
	}
	return nil
}

// isBareMembersPath reports whether path names the members attribute
// with no sub-attribute and no value-path filter, e.g. "members" but
// not "members[value eq \"x\"]" or "members.value".
func isBareMembersPath(path string) bool {
	if path == "" {
		return false
	}
	parsed := parsePath(path)
	return len(parsed.Segments) == 1 &&
		strings.EqualFold(parsed.Segments[0].Attribute, "members") &&
		parsed.Segments[0].Filter == nil
}

// applyMembersOp implements the membership-operation path: a filtered
// remove (members[value eq "x"]) never reaches here (isBareMembersPath
// excludes it) and is always allowed; an unfiltered op on the bare
// "members" path requires an array value and is gated by flags when
// it would touch more than one member at once.
func (pp *PatchProcessor) applyMembersOp(resource *Resource, op PatchOperation, flags MembershipFlags) error {
	switch strings.ToLower(op.Op) {
	case "add":
		members, ok := op.Value.([]any)
		if !ok {
			return ErrInvalidValue("members add requires an array value")
		}
		if len(members) > 1 && !flags.AllowMultiAdd {
			return ErrMembershipFlagRequired("MultiOpPatchRequestAddMultipleMembersToGroup")
		}
		return pp.setAtPath(resource, parsePath("members"), op.Value, false)

	case "remove":
		if isEmptyPatchValue(op.Value) {
			if !flags.AllowRemoveAll {
				return ErrMembershipFlagRequired("PatchOpAllowRemoveAllMembers")
			}
			return pp.removeAtPath(resource, parsePath("members"))
		}
		members, ok := op.Value.([]any)
		if !ok {
			return ErrInvalidValue("members remove requires an array value")
		}
		if len(members) > 1 && !flags.AllowMultiRemove {
			return ErrMembershipFlagRequired("MultiOpPatchRequestRemoveMultipleMembersFromGroup")
		}
		return pp.removeMembersByValue(resource, members)

	case "replace":
		if isEmptyPatchValue(op.Value) {
			if !flags.AllowRemoveAll {
				return ErrMembershipFlagRequired("PatchOpAllowRemoveAllMembers")
			}
			return pp.removeAtPath(resource, parsePath("members"))
		}
		if _, ok := op.Value.([]any); !ok {
			return ErrInvalidValue("members replace requires an array value")
		}
		return pp.setAtPath(resource, parsePath("members"), op.Value, true)

	default:
		return ErrInvalidValue(fmt.Sprintf("invalid operation: %s", op.Op))
	}
}

// removeMembersByValue removes the elements of the stored members
// array whose "value" matches one of members' "value" entries.
func (pp *PatchProcessor) removeMembersByValue(resource *Resource, members []any) error {
	container, lastAttr, _, err := pp.navigate(resource, parsePath("members"), false)
	if err != nil {
		return err
	}
	if container == nil {
		return nil
	}
	toRemove := make(map[string]bool, len(members))
	for _, m := range members {
		if mm, ok := m.(map[string]any); ok {
			if v, ok := mm["value"].(string); ok {
				toRemove[v] = true
			}
		}
	}
	arr, ok := container[lastAttr].([]any)
	if !ok {
		return nil
	}
	filtered := make([]any, 0, len(arr))
	for _, elem := range arr {
		if mm, ok := elem.(map[string]any); ok {
			if v, ok := mm["value"].(string); ok && toRemove[v] {
				continue
			}
		}
		filtered = append(filtered, elem)
	}
	container[lastAttr] = filtered
	return nil
}

func (pp *PatchProcessor) applyOperation(resource *Resource, op PatchOperation) error {
	switch strings.ToLower(op.Op) {
	case "add":
		return pp.applyAdd(resource, op)
	case "remove":
		return pp.applyRemove(resource, op)
	case "replace":
		return pp.applyReplace(resource, op)
	default:
		return ErrInvalidValue(fmt.Sprintf("invalid operation: %s", op.Op))
	}
}

func (pp *PatchProcessor) applyAdd(resource *Resource, op PatchOperation) error {
	if op.Path == "" {
		return pp.mergeRoot(resource, op.Value)
	}
	path := parsePath(op.Path)
	return pp.setAtPath(resource, path, op.Value, false)
}

func (pp *PatchProcessor) applyRemove(resource *Resource, op PatchOperation) error {
	if op.Path == "" {
		return ErrNoTarget("path is required for remove operation")
	}
	path := parsePath(op.Path)
	return pp.removeAtPath(resource, path)
}

func (pp *PatchProcessor) applyReplace(resource *Resource, op PatchOperation) error {
	if op.Path == "" {
		return pp.mergeRoot(resource, op.Value)
	}
	path := parsePath(op.Path)
	return pp.setAtPath(resource, path, op.Value, true)
}

// mergeRoot merges a map of attributes into the resource root, per
// RFC 7644 Section 3.5.2.1's "no path" add/replace form. An empty
// string or empty slice value collapses to removing the attribute.
func (pp *PatchProcessor) mergeRoot(resource *Resource, value any) error {
	valueMap, ok := value.(map[string]any)
	if !ok {
		return ErrInvalidValue("value for a path-less add/replace must be an object")
	}
	for key, val := range valueMap {
		if isEmptyPatchValue(val) {
			resource.removeTopLevel(key)
			continue
		}
		resource.setTopLevel(key, val)
	}
	return nil
}

func isEmptyPatchValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	}
	return false
}

// setTopLevel writes a top-level attribute, routing the handful of
// first-class fields (externalId) through their dedicated struct
// field instead of the attribute map.
func (r *Resource) setTopLevel(key string, value any) {
	if strings.EqualFold(key, "externalid") {
		if s, ok := value.(string); ok {
			r.ExternalID = s
		}
		return
	}
	if strings.EqualFold(key, "id") || strings.EqualFold(key, "meta") || strings.EqualFold(key, "schemas") {
		return
	}
	r.Set(key, value)
}

func (r *Resource) removeTopLevel(key string) {
	if strings.EqualFold(key, "externalid") {
		r.ExternalID = ""
		return
	}
	for k := range r.Attributes {
		if strings.EqualFold(k, key) {
			delete(r.Attributes, k)
			return
		}
	}
}

// Path represents a parsed SCIM path
type Path struct {
	Segments []PathSegment
}

// PathSegment represents a segment of a path
type PathSegment struct {
	Attribute string
	Filter    *AttributeExpression
}

// parsePath parses a SCIM path expression, e.g.
//
//	emails[type eq "work"].value
//	name.givenName
//	urn:ietf:params:scim:schemas:extension:enterprise:2.0:User:department
func parsePath(pathStr string) *Path {
	path := &Path{Segments: []PathSegment{}}

	// URN-extension paths use the schema URN as the first "segment",
	// separated from the attribute by a colon rather than a dot.
	if idx := strings.LastIndex(pathStr, ":"); idx > 0 && strings.Contains(pathStr[:idx], ":params:scim:schemas:") {
		path.Segments = append(path.Segments, PathSegment{Attribute: pathStr[:idx]})
		pathStr = pathStr[idx+1:]
	}

	for part := range strings.SplitSeq(pathStr, ".") {
		segment := PathSegment{}

		if strings.Contains(part, "[") {
			openIdx := strings.Index(part, "[")
			closeIdx := strings.Index(part, "]")
			segment.Attribute = part[:openIdx]
			if closeIdx > openIdx {
				filterStr := part[openIdx+1 : closeIdx]
				parser := NewFilterParser(filterStr)
				filter, err := parser.Parse()
				if err == nil {
					if attrExpr, ok := filter.(*AttributeExpression); ok {
						segment.Filter = attrExpr
					}
				}
			}
		} else {
			segment.Attribute = part
		}

		path.Segments = append(path.Segments, segment)
	}

	return path
}

// setAtPath navigates to the container named by all but the last
// segment and performs an add/replace at the final segment.
func (pp *PatchProcessor) setAtPath(resource *Resource, path *Path, value any, replace bool) error {
	container, lastAttr, lastFilter, err := pp.navigate(resource, path, true)
	if err != nil {
		return err
	}

	if lastFilter != nil {
		arr, _ := container[lastAttr].([]any)
		for i, elem := range arr {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if lastFilter.Matches(m) {
				arr[i] = mergeOrReplaceElement(m, value, replace)
				return nil
			}
		}
		return ErrNoTarget(fmt.Sprintf("no matching element found for filter in attribute %s", lastAttr))
	}

	if isEmptyPatchValue(value) && replace {
		delete(container, lastAttr)
		return nil
	}

	existing, hasExisting := container[lastAttr]
	if !replace && hasExisting {
		if arr, ok := existing.([]any); ok {
			container[lastAttr] = appendPatchValue(arr, value)
			return nil
		}
	}
	container[lastAttr] = value
	return nil
}

// mergeOrReplaceElement applies a value-path op with no sub-attribute
// to the matched array element: replace swaps the element outright,
// add merges the value's fields into it (RFC 7644 Section 3.5.2.1).
func mergeOrReplaceElement(existing map[string]any, value any, replace bool) any {
	valMap, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if replace {
		return valMap
	}
	merged := make(map[string]any, len(existing)+len(valMap))
	maps.Copy(merged, existing)
	maps.Copy(merged, valMap)
	return merged
}

func appendPatchValue(arr []any, value any) []any {
	if items, ok := value.([]any); ok {
		return append(arr, items...)
	}
	return append(arr, value)
}

func (pp *PatchProcessor) removeAtPath(resource *Resource, path *Path) error {
	container, lastAttr, lastFilter, err := pp.navigate(resource, path, false)
	if err != nil {
		return err
	}
	if container == nil {
		return nil
	}

	if lastFilter != nil {
		arr, ok := container[lastAttr].([]any)
		if !ok {
			return nil
		}
		filtered := make([]any, 0, len(arr))
		for _, elem := range arr {
			m, ok := elem.(map[string]any)
			if ok && lastFilter.Matches(m) {
				continue
			}
			filtered = append(filtered, elem)
		}
		container[lastAttr] = filtered
		return nil
	}

	for k := range container {
		if strings.EqualFold(k, lastAttr) {
			delete(container, k)
			return nil
		}
	}
	return nil
}

// navigate walks all but the last path segment, returning the map
// that directly contains the final attribute (creating intermediate
// maps along the way when create is true), plus the final segment's
// attribute name and optional value filter.
func (pp *PatchProcessor) navigate(resource *Resource, path *Path, create bool) (map[string]any, string, *AttributeExpression, error) {
	if resource.Attributes == nil {
		resource.Attributes = make(map[string]any)
	}
	container := resource.Attributes

	for i, segment := range path.Segments {
		isLast := i == len(path.Segments)-1

		if isLast {
			return container, findKey(container, segment.Attribute, segment.Attribute), segment.Filter, nil
		}

		key := findKey(container, segment.Attribute, segment.Attribute)

		if segment.Filter != nil {
			arr, _ := container[key].([]any)
			found := false
			for _, elem := range arr {
				if m, ok := elem.(map[string]any); ok && segment.Filter.Matches(m) {
					container = m
					found = true
					break
				}
			}
			if !found {
				if !create {
					return nil, "", nil, nil
				}
				return nil, "", nil, ErrNoTarget(fmt.Sprintf("no matching element found for filter in attribute %s", segment.Attribute))
			}
			continue
		}

		next, ok := container[key].(map[string]any)
		if !ok {
			if !create {
				return nil, "", nil, nil
			}
			next = make(map[string]any)
			container[key] = next
		}
		container = next
	}

	return container, "", nil, nil
}

// findKey returns the key already present in m that matches name
// case-insensitively, or fallback if none is present.
func findKey(m map[string]any, name, fallback string) string {
	for k := range m {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return fallback
}
