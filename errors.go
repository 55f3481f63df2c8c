package cascade

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when a service name has no registered descriptor.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no service registered under name %q", e.Name)
}

// CycleError is returned when dependency resolution re-enters a name that is
// already on the current resolution chain. Chain holds the offending cycle,
// starting and ending with the repeated name.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

// ConstructionError wraps a failure raised by a service factory or its
// post-construction hook.
type ConstructionError struct {
	Name string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construction of service %q failed: %v", e.Name, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// InvalidDescriptorError is returned by Register when a descriptor violates a
// static invariant (empty name, nil factory, duplicate or self dependency).
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid descriptor %q: %s", e.Name, e.Reason)
}

// UndeclaredDependencyError is returned when a factory asks its Deps view for
// a name the owning descriptor never declared.
type UndeclaredDependencyError struct {
	Service    string
	Dependency string
}

func (e *UndeclaredDependencyError) Error() string {
	return fmt.Sprintf("service %q did not declare a dependency on %q", e.Service, e.Dependency)
}

// TypeMismatchError represents a failed typed assertion on a resolved
// instance.
type TypeMismatchError struct {
	Name     string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("service %q: expected %s, got %s", e.Name, e.Expected, e.Got)
}
