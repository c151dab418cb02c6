package users

import (
	"fmt"
	"strings"
)

type Privilege uint32

const (
	PrivilegeSelect Privilege = 1 << iota
	PrivilegeInsert
	PrivilegeUpdate
	PrivilegeDelete
	PrivilegeCreate
	PrivilegeDrop
	PrivilegeAlter
	PrivilegeGrant
	PrivilegeSuper
)

var privilegeNames = []struct {
	privilege Privilege
	name      string
}{
	{PrivilegeSelect, "Select"},
	{PrivilegeInsert, "Insert"},
	{PrivilegeUpdate, "Update"},
	{PrivilegeDelete, "Delete"},
	{PrivilegeCreate, "Create"},
	{PrivilegeDrop, "Drop"},
	{PrivilegeAlter, "Alter"},
	{PrivilegeGrant, "Grant"},
	{PrivilegeSuper, "Super"},
}

func (p Privilege) String() string {
	for _, entry := range privilegeNames {
		if entry.privilege == p {
			return entry.name
		}
	}
	return "Unknown"
}

// PrivilegeSet is a bitmask of privileges.
type PrivilegeSet uint32

func NewPrivilegeSet(privileges ...Privilege) PrivilegeSet {
	var set PrivilegeSet
	set.Add(privileges...)
	return set
}

// AllGlobalPrivileges returns the set containing every privilege.
func AllGlobalPrivileges() PrivilegeSet {
	var set PrivilegeSet
	for _, entry := range privilegeNames {
		set.Add(entry.privilege)
	}
	return set
}

func (s PrivilegeSet) Contains(p Privilege) bool {
	return s&PrivilegeSet(p) != 0
}

func (s *PrivilegeSet) Add(privileges ...Privilege) {
	for _, p := range privileges {
		*s |= PrivilegeSet(p)
	}
}

func (s *PrivilegeSet) Remove(privileges ...Privilege) {
	for _, p := range privileges {
		*s &^= PrivilegeSet(p)
	}
}

func (s PrivilegeSet) IsEmpty() bool {
	return s == 0
}

func (s PrivilegeSet) String() string {
	var names []string
	for _, entry := range privilegeNames {
		if s.Contains(entry.privilege) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

type GrantObjectKind int

const (
	GrantObjectGlobal GrantObjectKind = iota
	GrantObjectSchema
	GrantObjectTable
)

// GrantObject identifies what a grant applies to: everything, one schema, or one table.
type GrantObject struct {
	Kind   GrantObjectKind `json:"kind"`
	Schema string          `json:"schema,omitempty"`
	Table  string          `json:"table,omitempty"`
}

func GlobalObject() GrantObject {
	return GrantObject{Kind: GrantObjectGlobal}
}

func SchemaObject(schema string) GrantObject {
	return GrantObject{Kind: GrantObjectSchema, Schema: schema}
}

func TableObject(schema string, table string) GrantObject {
	return GrantObject{Kind: GrantObjectTable, Schema: schema, Table: table}
}

// Contains reports whether a grant on o also covers other. Global grants cover everything,
// schema grants cover the schema and its tables.
func (o GrantObject) Contains(other GrantObject) bool {
	switch o.Kind {
	case GrantObjectGlobal:
		return true
	case GrantObjectSchema:
		return other.Kind != GrantObjectGlobal && other.Schema == o.Schema
	case GrantObjectTable:
		return other.Kind == GrantObjectTable && other.Schema == o.Schema && other.Table == o.Table
	}
	return false
}

func (o GrantObject) specificity() int {
	switch o.Kind {
	case GrantObjectSchema:
		return 1
	case GrantObjectTable:
		return 2
	default:
		return 0
	}
}

func (o GrantObject) String() string {
	switch o.Kind {
	case GrantObjectSchema:
		return fmt.Sprintf("%s.*", o.Schema)
	case GrantObjectTable:
		return fmt.Sprintf("%s.%s", o.Schema, o.Table)
	default:
		return "*.*"
	}
}

type GrantEntry struct {
	Object     GrantObject  `json:"object"`
	Privileges PrivilegeSet `json:"privileges"`
}

// GrantSet holds the grants of one user.
type GrantSet struct {
	Entries []GrantEntry `json:"entries,omitempty"`
}

// GrantPrivileges merges privileges into the entry for obj, creating the entry if needed.
func (g *GrantSet) GrantPrivileges(obj GrantObject, privileges PrivilegeSet) {
	for i := range g.Entries {
		if g.Entries[i].Object == obj {
			g.Entries[i].Privileges |= privileges
			return
		}
	}
	g.Entries = append(g.Entries, GrantEntry{Object: obj, Privileges: privileges})
}

// RevokePrivileges removes privileges from the entry for obj. Entries left with no
// privileges are dropped.
func (g *GrantSet) RevokePrivileges(obj GrantObject, privileges PrivilegeSet) {
	for i := range g.Entries {
		if g.Entries[i].Object == obj {
			g.Entries[i].Privileges &^= privileges
			if g.Entries[i].Privileges.IsEmpty() {
				g.Entries = append(g.Entries[:i], g.Entries[i+1:]...)
			}
			return
		}
	}
}

// Verify resolves the most specific grant that covers obj: a table grant beats a schema
// grant, which beats a global grant. Entries of equal specificity are combined.
func (g *GrantSet) Verify(obj GrantObject, privilege Privilege) bool {
	best := -1
	allowed := false
	for _, entry := range g.Entries {
		if !entry.Object.Contains(obj) {
			continue
		}
		spec := entry.Object.specificity()
		if spec > best {
			best = spec
			allowed = entry.Privileges.Contains(privilege)
		} else if spec == best && !allowed {
			allowed = entry.Privileges.Contains(privilege)
		}
	}
	return allowed
}
