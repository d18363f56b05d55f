// Package engine describes the read-only view of a running test engine that the
// recorder consumes: suites, test contexts, classes, methods, per-invocation results
// and the worker each event arrives on.
//
// Values are created by the event producer. Pointer identity is significant: the
// recorder caches report ids per *Suite and *TestContext, so a producer must hand out
// the same pointer for every event concerning the same entity.
package engine

// WorkerID names the logical worker (thread) an event is delivered on.
type WorkerID string

// Suite is a top-level collection of test contexts.
type Suite struct {
	Name string
}

// TestContext is one test context (an xml <test> tag) inside a suite.
type TestContext struct {
	Name  string
	Suite *Suite
}

// Class is the test class a method is declared on.
type Class struct {
	Name        string // fully qualified class name, e.g. "pkg.Cls"
	TestName    string // optional display override for the sub-suite label
	XMLSuite    string // name of the enclosing xml suite, if known
	XMLTest     string // name of the enclosing xml test tag, if known
	Annotations []Annotation
}

// AnnotationsOf returns the class annotations of the given type. Safe on a nil class.
func (c *Class) AnnotationsOf(t AnnotationType) []Annotation {
	if c == nil {
		return nil
	}
	return filterAnnotations(c.Annotations, t)
}

// Method is a test method or a configuration (fixture) method.
type Method struct {
	Name           string
	QualifiedName  string
	Description    string
	Class          *Class
	ParameterNames []string
	Annotations    []Annotation
	Kind           MethodKind
}

// AnnotationsOf returns the method annotations of the given type. Safe on a nil method.
func (m *Method) AnnotationsOf(t AnnotationType) []Annotation {
	if m == nil {
		return nil
	}
	return filterAnnotations(m.Annotations, t)
}

// Result is the engine's record of one test invocation.
type Result struct {
	Worker     WorkerID
	Method     *Method
	Context    *TestContext
	Parameters []any
	Err        error
}

// Invocation is delivered around every configuration, data-provider and test method call.
// Suite is set when the engine knows the suite but not a test context, as for
// suite-level fixtures running outside any <test>.
type Invocation struct {
	Worker  WorkerID
	Method  *Method
	Result  *Result
	Context *TestContext
	Suite   *Suite
}
