package engine

// MethodKind classifies a method by the role the engine gives it.
type MethodKind int

const (
	KindTest MethodKind = iota
	KindBeforeSuite
	KindAfterSuite
	KindBeforeTest
	KindAfterTest
	KindBeforeClass
	KindAfterClass
	KindBeforeMethod
	KindAfterMethod
	KindDataProvider
)

var kindNames = map[MethodKind]string{
	KindTest:         "test",
	KindBeforeSuite:  "before-suite",
	KindAfterSuite:   "after-suite",
	KindBeforeTest:   "before-test",
	KindAfterTest:    "after-test",
	KindBeforeClass:  "before-class",
	KindAfterClass:   "after-class",
	KindBeforeMethod: "before-method",
	KindAfterMethod:  "after-method",
	KindDataProvider: "data-provider",
}

func (k MethodKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseMethodKind maps a kind name back to its MethodKind.
func ParseMethodKind(name string) (MethodKind, bool) {
	if name == "" {
		return KindTest, true
	}
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// IsConfiguration reports whether the method is a setup/teardown method of any granularity.
func (k MethodKind) IsConfiguration() bool {
	_, known := kindNames[k]
	return known && k != KindTest && k != KindDataProvider
}

// IsSupportedFixture reports whether the recorder models this fixture: suite, test
// context and method granularity only.
func (k MethodKind) IsSupportedFixture() bool {
	switch k {
	case KindBeforeSuite, KindAfterSuite,
		KindBeforeTest, KindAfterTest,
		KindBeforeMethod, KindAfterMethod:
		return true
	}
	return false
}

// IsSuiteFixture reports whether the fixture runs around a whole suite.
func (k MethodKind) IsSuiteFixture() bool {
	return k == KindBeforeSuite || k == KindAfterSuite
}

// IsContextFixture reports whether the fixture runs around a test context.
func (k MethodKind) IsContextFixture() bool {
	return k == KindBeforeTest || k == KindAfterTest
}

// IsMethodFixture reports whether the fixture runs around a single test method.
func (k MethodKind) IsMethodFixture() bool {
	return k == KindBeforeMethod || k == KindAfterMethod
}

// IsBefore reports whether the fixture is a setup (as opposed to teardown) method.
func (k MethodKind) IsBefore() bool {
	switch k {
	case KindBeforeSuite, KindBeforeTest, KindBeforeClass, KindBeforeMethod:
		return true
	}
	return false
}
