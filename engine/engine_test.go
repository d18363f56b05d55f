package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodKindClassification(t *testing.T) {
	tests := []struct {
		kind      MethodKind
		config    bool
		supported bool
		method    bool
		before    bool
	}{
		{kind: KindTest},
		{kind: KindDataProvider},
		{kind: KindBeforeSuite, config: true, supported: true, before: true},
		{kind: KindAfterSuite, config: true, supported: true},
		{kind: KindBeforeTest, config: true, supported: true, before: true},
		{kind: KindAfterTest, config: true, supported: true},
		{kind: KindBeforeClass, config: true, before: true},
		{kind: KindAfterClass, config: true},
		{kind: KindBeforeMethod, config: true, supported: true, method: true, before: true},
		{kind: KindAfterMethod, config: true, supported: true, method: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.config, tt.kind.IsConfiguration())
			assert.Equal(t, tt.supported, tt.kind.IsSupportedFixture())
			assert.Equal(t, tt.method, tt.kind.IsMethodFixture())
			assert.Equal(t, tt.before, tt.kind.IsBefore())
		})
	}
}

func TestParseMethodKind(t *testing.T) {
	for k, name := range kindNames {
		got, ok := ParseMethodKind(name)
		require.True(t, ok, name)
		assert.Equal(t, k, got)
	}

	got, ok := ParseMethodKind("")
	assert.True(t, ok)
	assert.Equal(t, KindTest, got)

	_, ok = ParseMethodKind("before-groups")
	assert.False(t, ok)
	assert.Equal(t, "unknown", MethodKind(99).String())
	assert.False(t, MethodKind(99).IsConfiguration())
}

func TestAnnotationsOf(t *testing.T) {
	cls := &Class{Annotations: []Annotation{
		{Type: AnnotationFeature, Value: "a"},
		{Type: AnnotationEpic, Value: "e"},
		{Type: AnnotationFeature, Value: "b"},
	}}
	assert.Equal(t, []Annotation{
		{Type: AnnotationFeature, Value: "a"},
		{Type: AnnotationFeature, Value: "b"},
	}, cls.AnnotationsOf(AnnotationFeature))

	var nilClass *Class
	var nilMethod *Method
	assert.Nil(t, nilClass.AnnotationsOf(AnnotationFeature))
	assert.Nil(t, nilMethod.AnnotationsOf(AnnotationFeature))
}

type customAssertion struct{ assertion bool }

func (c customAssertion) Error() string          { return "custom" }
func (c customAssertion) AssertionFailure() bool { return c.assertion }

func TestIsAssertionFailure(t *testing.T) {
	assert.True(t, IsAssertionFailure(&AssertionError{Message: "expected 1, got 2"}))
	assert.True(t, IsAssertionFailure(fmt.Errorf("wrapped: %w", &AssertionError{})))
	assert.True(t, IsAssertionFailure(customAssertion{assertion: true}))
	assert.False(t, IsAssertionFailure(customAssertion{assertion: false}))
	assert.False(t, IsAssertionFailure(errors.New("boom")))
	assert.False(t, IsAssertionFailure(nil))
}
