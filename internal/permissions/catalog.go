package permissions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Any is the reserved wildcard literal matching every user or resource
// instance. It may never be used as the id of a real identity object.
const Any = "*"

// Permission is a named bit flag scoped to one or more resource types.
type Permission struct {
	Name  string
	Value int
}

// Matches reports whether every bit of p is present in mask.
func (p Permission) Matches(mask int) bool {
	return mask&p.Value == p.Value
}

// Resource identifies a protected resource type.
type Resource struct {
	Type int
	Name string
}

// None and All are valid for every resource type. All is the identity
// element for bitwise intersection and the absorbing element for union.
var (
	None = Permission{Name: "NONE", Value: 0}
	All  = Permission{Name: "ALL", Value: 1<<31 - 1}
)

type resourceEntry struct {
	resource    Resource
	permissions []Permission
}

type catalog struct {
	mu      sync.RWMutex
	entries map[int]*resourceEntry
}

var globalCatalog = &catalog{
	entries: make(map[int]*resourceEntry),
}

var (
	errEmptyResourceName  = errors.New("catalog: resource name is required")
	errDuplicateResource  = errors.New("catalog: resource type already registered")
	errReservedPermission = errors.New("catalog: NONE and ALL are implicit and cannot be re-declared")
	errNotSingleBit       = errors.New("catalog: permission value must be a single positive bit")
	errOverlappingBits    = errors.New("catalog: permission bit already declared for this resource")
)

// RegisterResource declares a resource type together with the permission bits
// valid for it. NONE and ALL are implicit and must not be passed; every
// declared permission carries exactly one bit, and no two permissions of one
// resource may share a bit.
func RegisterResource(resource Resource, perms ...Permission) error {
	if resource.Name == "" {
		return errEmptyResourceName
	}

	declared := 0
	for _, perm := range perms {
		if perm.Value == None.Value || perm.Value == All.Value {
			return fmt.Errorf("%w: %s", errReservedPermission, perm.Name)
		}
		if perm.Value <= 0 || perm.Value&(perm.Value-1) != 0 {
			return fmt.Errorf("%w: %s", errNotSingleBit, perm.Name)
		}
		if declared&perm.Value != 0 {
			return fmt.Errorf("%w: %s", errOverlappingBits, perm.Name)
		}
		declared |= perm.Value
	}

	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()

	if _, exists := globalCatalog.entries[resource.Type]; exists {
		return fmt.Errorf("%w: %d", errDuplicateResource, resource.Type)
	}

	entry := &resourceEntry{resource: resource}
	entry.permissions = append(entry.permissions, perms...)
	sort.Slice(entry.permissions, func(i, j int) bool {
		return entry.permissions[i].Value < entry.permissions[j].Value
	})

	globalCatalog.entries[resource.Type] = entry
	return nil
}

// ResourceByType returns the registered resource for the given type code.
func ResourceByType(resourceType int) (Resource, bool) {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	entry, ok := globalCatalog.entries[resourceType]
	if !ok {
		return Resource{}, false
	}
	return entry.resource, true
}

// ResourceName returns the display name for a resource type, or a numeric
// placeholder when the type is unknown.
func ResourceName(resourceType int) string {
	if resource, ok := ResourceByType(resourceType); ok {
		return resource.Name
	}
	return fmt.Sprintf("resource type %d", resourceType)
}

// PermissionsFor lists the permissions declared for a resource type,
// including the NONE and ALL sentinels.
func PermissionsFor(resourceType int) ([]Permission, error) {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	entry, ok := globalCatalog.entries[resourceType]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown resource type %d", resourceType)
	}

	out := make([]Permission, 0, len(entry.permissions)+2)
	out = append(out, None)
	out = append(out, entry.permissions...)
	out = append(out, All)
	return out, nil
}

// IsValid reports whether the permission bits are declared for the resource
// type. NONE and ALL are always valid for every registered type.
func IsValid(resourceType int, perm Permission) bool {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	entry, ok := globalCatalog.entries[resourceType]
	if !ok {
		return false
	}

	if perm.Value == None.Value || perm.Value == All.Value {
		return true
	}

	var declared int
	for _, candidate := range entry.permissions {
		declared |= candidate.Value
	}
	return declared&perm.Value == perm.Value
}

// PermissionByName resolves a declared permission for the resource type.
func PermissionByName(resourceType int, name string) (Permission, bool) {
	switch name {
	case None.Name:
		return None, true
	case All.Name:
		return All, true
	}

	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	entry, ok := globalCatalog.entries[resourceType]
	if !ok {
		return Permission{}, false
	}
	for _, candidate := range entry.permissions {
		if candidate.Name == name {
			return candidate, true
		}
	}
	return Permission{}, false
}

// Resources lists all registered resource types ordered by type code.
func Resources() []Resource {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	out := make([]Resource, 0, len(globalCatalog.entries))
	for _, entry := range globalCatalog.entries {
		out = append(out, entry.resource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// reset clears catalog entries. Intended for testing only.
func reset() {
	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()
	globalCatalog.entries = make(map[int]*resourceEntry)
}

// removeResource drops a single entry. Intended for testing only.
func removeResource(resourceType int) {
	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()
	delete(globalCatalog.entries, resourceType)
}
