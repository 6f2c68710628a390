package types

import "fmt"

// TestData holds the parameter values a case binds to its steps, keyed by data reference
type TestData map[string]any

// StepSpec is the declarative description of one step in a case
type StepSpec struct {
	Name        string `json:"name" yaml:"name"`
	TestObject  string `json:"testObject" yaml:"testObject"`
	Using       string `json:"using,omitempty" yaml:"using,omitempty"`
	Screenshot  bool   `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	StopOnError *bool  `json:"stopOnError,omitempty" yaml:"stopOnError,omitempty"`
}

// QualifiedName returns the step name prefixed with its test object
func (s StepSpec) QualifiedName() string {
	if s.TestObject == "" {
		return s.Name
	}
	return fmt.Sprintf("%s.%s", s.TestObject, s.Name)
}

// TestCase is an ordered sequence of steps loaded from a case file.
// It is not modified after loading.
type TestCase struct {
	Name        string     `json:"name" yaml:"name"`
	Package     string     `json:"-" yaml:"-"`
	FileName    string     `json:"-" yaml:"-"`
	Meta        []string   `json:"meta,omitempty" yaml:"meta,omitempty"`
	TestCaseID  string     `json:"testCaseId,omitempty" yaml:"testCaseId,omitempty"`
	Type        string     `json:"type,omitempty" yaml:"type,omitempty"`
	StopOnError *bool      `json:"stopOnError,omitempty" yaml:"stopOnError,omitempty"`
	Data        TestData   `json:"data,omitempty" yaml:"data,omitempty"`
	Steps       []StepSpec `json:"steps" yaml:"steps"`
}

// Key returns the identity used to collect results of this case
func (tc TestCase) Key() string {
	if tc.Package != "" {
		return fmt.Sprintf("%s::%s", tc.Package, tc.Name)
	}
	return tc.Name
}

// HasMeta reports whether the case is tagged with tag
func (tc TestCase) HasMeta(tag string) bool {
	for _, m := range tc.Meta {
		if m == tag {
			return true
		}
	}
	return false
}

// BoolPtr is a small helper for the optional stop-on-error overrides
func BoolPtr(b bool) *bool {
	return &b
}
