package listener

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum-optimism/infra/op-recorder/types"
)

// LabelRule maps one annotation type onto a label category.
type LabelRule struct {
	Category   string
	Annotation engine.AnnotationType
}

// DefaultLabelRules are the grouping dimensions every test case is scanned for.
var DefaultLabelRules = []LabelRule{
	{Category: "epic", Annotation: engine.AnnotationEpic},
	{Category: "feature", Annotation: engine.AnnotationFeature},
	{Category: "story", Annotation: engine.AnnotationStory},
	{Category: "severity", Annotation: engine.AnnotationSeverity},
	{Category: "owner", Annotation: engine.AnnotationOwner},
}

// Link types
const (
	LinkTypeCustom = "custom"
	LinkTypeIssue  = "issue"
	LinkTypeTms    = "tms"
)

var linkRules = []struct {
	annotation engine.AnnotationType
	linkType   string
}{
	{engine.AnnotationLink, LinkTypeCustom},
	{engine.AnnotationIssue, LinkTypeIssue},
	{engine.AnnotationTmsLink, LinkTypeTms},
}

const (
	undefinedSuite     = "Undefined suite"
	undefinedTestTag   = "Undefined testng tag"
	undefinedClassName = "Undefined class name"
	unknownTestName    = "Unknown"
)

type metadataExtractor struct {
	rules        []LabelRule
	linkPatterns map[string]string
	host         string
	pid          int
}

func newMetadataExtractor(rules []LabelRule, linkPatterns map[string]string, host string) *metadataExtractor {
	return &metadataExtractor{
		rules:        rules,
		linkPatterns: linkPatterns,
		host:         host,
		pid:          os.Getpid(),
	}
}

// structuralLabels are derived from where the test lives and where it ran.
func (m *metadataExtractor) structuralLabels(method *engine.Method, worker engine.WorkerID) []types.Label {
	cls := method.Class
	var className string
	if cls != nil {
		className = cls.Name
	}
	return []types.Label{
		// packages grouping
		{Name: "package", Value: className},
		{Name: "testClass", Value: className},
		{Name: "testMethod", Value: method.Name},

		// xUnit grouping
		{Name: "parentSuite", Value: suiteName(cls)},
		{Name: "suite", Value: testTag(cls)},
		{Name: "subSuite", Value: testClassName(cls)},

		// timeline grouping
		{Name: "host", Value: m.host},
		{Name: "thread", Value: m.threadName(worker)},
	}
}

// annotationLabels applies every label rule, method-level annotations replacing
// class-level ones per category.
func (m *metadataExtractor) annotationLabels(method *engine.Method) []types.Label {
	var labels []types.Label
	for _, rule := range m.rules {
		for _, a := range methodOverClass(method, rule.Annotation) {
			labels = append(labels, types.Label{Name: rule.Category, Value: a.Value})
		}
	}
	return labels
}

func (m *metadataExtractor) links(method *engine.Method) []types.Link {
	var links []types.Link
	for _, rule := range linkRules {
		for _, a := range methodOverClass(method, rule.annotation) {
			links = append(links, m.link(a, rule.linkType))
		}
	}
	return links
}

func (m *metadataExtractor) link(a engine.Annotation, linkType string) types.Link {
	if a.LinkType != "" {
		linkType = a.LinkType
	}
	name := firstNonEmpty(a.Value, a.Name)
	url := a.URL
	if url == "" {
		if pattern, ok := m.linkPatterns[linkType]; ok && name != "" {
			url = strings.ReplaceAll(pattern, "{}", name)
		}
	}
	return types.Link{Name: name, URL: url, Type: linkType}
}

func (m *metadataExtractor) threadName(worker engine.WorkerID) string {
	return fmt.Sprintf("%d@%s.%s", m.pid, m.host, worker)
}

// isFlaky and isMuted have no override semantics: either level marks the test.
func isFlaky(method *engine.Method) bool {
	return hasAnnotation(method, engine.AnnotationFlaky)
}

func isMuted(method *engine.Method) bool {
	return hasAnnotation(method, engine.AnnotationMuted)
}

func hasAnnotation(method *engine.Method, t engine.AnnotationType) bool {
	return len(method.AnnotationsOf(t)) > 0 || len(method.Class.AnnotationsOf(t)) > 0
}

func methodOverClass(method *engine.Method, t engine.AnnotationType) []engine.Annotation {
	if onMethod := method.AnnotationsOf(t); len(onMethod) > 0 {
		return onMethod
	}
	return method.Class.AnnotationsOf(t)
}

// parameters pairs declared parameter names with runtime values, truncated to the
// shorter of the two.
func parameters(result *engine.Result) []types.Parameter {
	names := result.Method.ParameterNames
	n := min(len(names), len(result.Parameters))
	if n == 0 {
		return nil
	}
	params := make([]types.Parameter, 0, n)
	for i := 0; i < n; i++ {
		params = append(params, types.Parameter{Name: names[i], Value: safeString(result.Parameters[i])})
	}
	return params
}

// safeString never panics: fmt recovers from panicking String and Error methods.
func safeString(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func testName(method *engine.Method) string {
	return firstNonEmpty(method.Description, method.Name, method.QualifiedName, unknownTestName)
}

func suiteName(cls *engine.Class) string {
	if cls == nil || cls.XMLSuite == "" {
		return undefinedSuite
	}
	return cls.XMLSuite
}

func testTag(cls *engine.Class) string {
	if cls == nil || cls.XMLTest == "" {
		return undefinedTestTag
	}
	return cls.XMLTest
}

func testClassName(cls *engine.Class) string {
	if cls == nil {
		return undefinedClassName
	}
	return firstNonEmpty(cls.TestName, cls.Name, undefinedClassName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
