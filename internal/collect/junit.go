package collect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// Test id strategies.
const (
	StrategyClassnameName = "classname::name"
	StrategyPackageClass  = "package.class::name"
	StrategyName          = "name"
)

// unknownSuite names results whose testsuite has no name attribute.
const unknownSuite = "unknown"

// JUnit XML structures. Surefire rerun elements are included so retries can be counted.

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName   xml.Name         `xml:"testsuite"`
	Name      string           `xml:"name,attr"`
	TestCases []junitTestCase  `xml:"testcase"`
	Suites    []junitTestSuite `xml:"testsuite"`
}

type junitTestCase struct {
	Name          string         `xml:"name,attr"`
	Classname     string         `xml:"classname,attr"`
	Time          string         `xml:"time,attr"`
	Failure       *junitFailure  `xml:"failure"`
	Error         *junitFailure  `xml:"error"`
	Skipped       *junitSkipped  `xml:"skipped"`
	FlakyFailures []junitFailure `xml:"flakyFailure"`
	FlakyErrors   []junitFailure `xml:"flakyError"`
	RerunFailures []junitFailure `xml:"rerunFailure"`
	RerunErrors   []junitFailure `xml:"rerunError"`
	SystemOut     *junitOutput   `xml:"system-out"`
	SystemErr     *junitOutput   `xml:"system-err"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

func (f *junitFailure) text() string {
	if s := strings.TrimSpace(f.Content); s != "" {
		return s
	}
	return f.Message
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitOutput struct {
	Content string `xml:",chardata"`
}

// ParseJUnit reads a JUnit XML report. The root may be <testsuites>, a single
// <testsuite>, or any element containing <testsuite> elements.
func ParseJUnit(r io.Reader, strategy string) ([]*core.TestResult, error) {
	dec := xml.NewDecoder(r)

	var results []*core.TestResult
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "testsuites":
			var suites junitTestSuites
			if err := dec.DecodeElement(&suites, &start); err != nil {
				return nil, fmt.Errorf("invalid XML: %w", err)
			}
			for i := range suites.Suites {
				results = appendSuite(results, &suites.Suites[i], strategy)
			}
		case "testsuite":
			var suite junitTestSuite
			if err := dec.DecodeElement(&suite, &start); err != nil {
				return nil, fmt.Errorf("invalid XML: %w", err)
			}
			results = appendSuite(results, &suite, strategy)
		}
	}
	return results, nil
}

func appendSuite(results []*core.TestResult, suite *junitTestSuite, strategy string) []*core.TestResult {
	name := suite.Name
	if name == "" {
		name = unknownSuite
	}
	for i := range suite.TestCases {
		results = append(results, convertCase(&suite.TestCases[i], name, strategy))
	}
	for i := range suite.Suites {
		results = appendSuite(results, &suite.Suites[i], strategy)
	}
	return results
}

func convertCase(tc *junitTestCase, suite, strategy string) *core.TestResult {
	tr := &core.TestResult{
		TestID:     BuildTestID(tc.Classname, tc.Name, strategy),
		Suite:      suite,
		Classname:  tc.Classname,
		Name:       tc.Name,
		DurationMS: parseSeconds(tc.Time) * 1000,
		Outcome:    core.OutcomePass,
		RetryCount: len(tc.FlakyFailures) + len(tc.FlakyErrors) + len(tc.RerunFailures) + len(tc.RerunErrors),
	}

	switch {
	case tc.Skipped != nil:
		tr.Outcome = core.OutcomeSkip
	case tc.Failure != nil:
		tr.Outcome = core.OutcomeFail
		tr.FailureText = tc.Failure.text()
	case tc.Error != nil:
		tr.Outcome = core.OutcomeFail
		tr.FailureText = tc.Error.text()
	}

	if tc.SystemOut != nil {
		tr.SystemOut = tc.SystemOut.Content
	}
	if tc.SystemErr != nil {
		tr.SystemErr = tc.SystemErr.Content
	}
	return tr
}

// BuildTestID derives a test id from classname and name.
func BuildTestID(classname, name, strategy string) string {
	switch strategy {
	case StrategyClassnameName:
		if classname == "" {
			return name
		}
		return classname + "::" + name
	case StrategyPackageClass:
		return classname + "::" + name
	default:
		return name
	}
}

func parseSeconds(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
