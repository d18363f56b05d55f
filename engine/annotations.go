package engine

import "errors"

// AnnotationType names the kind of declarative metadata attached to a method or class.
// Types outside the built-in set are allowed and can be mapped to labels through rules.
type AnnotationType string

const (
	AnnotationEpic     AnnotationType = "epic"
	AnnotationFeature  AnnotationType = "feature"
	AnnotationStory    AnnotationType = "story"
	AnnotationSeverity AnnotationType = "severity"
	AnnotationOwner    AnnotationType = "owner"
	AnnotationLink     AnnotationType = "link"
	AnnotationIssue    AnnotationType = "issue"
	AnnotationTmsLink  AnnotationType = "tms"
	AnnotationFlaky    AnnotationType = "flaky"
	AnnotationMuted    AnnotationType = "muted"
)

// Annotation is one piece of declarative metadata.
// Value carries the label value or link key; Name, URL and LinkType only apply to links.
type Annotation struct {
	Type     AnnotationType `json:"type"`
	Value    string         `json:"value,omitempty"`
	Name     string         `json:"name,omitempty"`
	URL      string         `json:"url,omitempty"`
	LinkType string         `json:"linkType,omitempty"`
}

func filterAnnotations(annotations []Annotation, t AnnotationType) []Annotation {
	var out []Annotation
	for _, a := range annotations {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// AssertionError is the failure an assertion library raises when a check does not hold.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// AssertionFailure marks AssertionError as an assertion-style failure.
func (e *AssertionError) AssertionFailure() bool {
	return true
}

// assertionFailure lets foreign error types declare themselves assertion-style.
type assertionFailure interface {
	AssertionFailure() bool
}

// IsAssertionFailure reports whether err, or any error it wraps, is assertion-style.
func IsAssertionFailure(err error) bool {
	var af assertionFailure
	return err != nil && errors.As(err, &af) && af.AssertionFailure()
}
