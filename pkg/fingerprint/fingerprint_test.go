package fingerprint

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/pkg/core"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"iso timestamp", "failed 2024-01-15T10:30:00Z", "failed <TIMESTAMP>Z"},
		{"time of day", "tick at 10:30:00", "tick at <TIMESTAMP>"},
		{"date", "on 2024-01-15 only", "on <TIMESTAMP> only"},
		{"uuid", "id 3fa85f64-5717-4562-b3fc-2c963f66afa6 gone", "id <UUID> gone"},
		{"hex hash", "commit deadbeefcafe broke", "commit <HASH> broke"},
		{"port", "dial localhost:8080 refused", "dial localhost:<PORT> refused"},
		{"duration ms", "took 150ms", "took <DURATION>"},
		{"duration fractional", "waited 1.5s", "waited <DURATION>"},
		{"whitespace", "  a \n\t b  ", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestTopFrames(t *testing.T) {
	t.Run("python traceback", func(t *testing.T) {
		text := "Traceback (most recent call last):\n" +
			"  File \"a.py\", line 1, in <module>\n" +
			"    foo()\n" +
			"  File \"b.py\", line 2, in foo\n" +
			"ValueError: bad"
		assert.Equal(t, []string{
			`File "a.py", line 1, in <module>`,
			`File "b.py", line 2, in foo`,
		}, TopFrames(text))
	})

	t.Run("java frames", func(t *testing.T) {
		text := "java.lang.IllegalStateException: boom\n" +
			"\tat com.example.Foo.run(Foo.java:10)\n" +
			"\tat com.example.Main.main(Main.java:3)"
		assert.Equal(t, []string{
			"at com.example.Foo.run(Foo.java:10)",
			"at com.example.Main.main(Main.java:3)",
		}, TopFrames(text))
	})

	t.Run("capped at ten", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 15; i++ {
			fmt.Fprintf(&b, "  at frame%d\n", i)
		}
		frames := TopFrames(b.String())
		require.Len(t, frames, 10)
		assert.Equal(t, "at frame0", frames[0])
		assert.Equal(t, "at frame9", frames[9])
	})

	t.Run("no trace", func(t *testing.T) {
		assert.Empty(t, TopFrames("expected true but was false"))
	})
}

func TestExceptionType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"AssertionError: expected 1", "AssertionError"},
		{"java.lang.IllegalStateException: boom", "IllegalStateException"},
		{"ComparisonFailure: strings differ", "ComparisonFailure"},
		{"FooException: first, then BarError: second", "BarError"},
		{"nothing recognisable here", UnknownException},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ExceptionType(tt.input))
		})
	}
}

func TestCompute_Stability(t *testing.T) {
	first := "AssertionError: request 3fa85f64-5717-4562-b3fc-2c963f66afa6 failed on 2024-01-01T10:00:00 after 1500ms\n" +
		"    at com.example.Api.call(Api.java:42)"
	second := "AssertionError: request 9c0d7e2a-1b3c-4d5e-8f90-a1b2c3d4e5f6 failed on 2025-06-30T23:59:59 after 20ms\n" +
		"    at com.example.Api.call(Api.java:42)"

	a, ok := Compute(first, DefaultVersion)
	require.True(t, ok)
	b, ok := Compute(second, DefaultVersion)
	require.True(t, ok)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	again, _ := Compute(first, DefaultVersion)
	assert.Equal(t, a, again, "fingerprint must be deterministic")
}

func TestCompute_Sensitivity(t *testing.T) {
	base, _ := Compute("ValueError: bad input", DefaultVersion)

	tests := []struct {
		name    string
		text    string
		version string
	}{
		{"different exception type", "TypeError: bad input", DefaultVersion},
		{"different message", "ValueError: missing input", DefaultVersion},
		{"different frames", "ValueError: bad input\n  at pkg.Other.call", DefaultVersion},
		{"different version", "ValueError: bad input", "v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compute(tt.text, tt.version)
			require.True(t, ok)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestCompute_Empty(t *testing.T) {
	fp, ok := Compute("", DefaultVersion)
	assert.False(t, ok)
	assert.Empty(t, fp)

	defaulted, _ := Compute("x", "")
	explicit, _ := Compute("x", DefaultVersion)
	assert.Equal(t, explicit, defaulted)
}

func TestEnsure(t *testing.T) {
	tr := &core.TestResult{TestID: "a", Outcome: core.OutcomeFail, FailureText: "AssertionError: nope"}
	fp := Ensure(tr, DefaultVersion)
	require.NotEmpty(t, fp)
	assert.Equal(t, fp, tr.Fingerprint)

	tr.FailureText = "something else entirely"
	assert.Equal(t, fp, Ensure(tr, DefaultVersion), "cached fingerprint is kept")

	empty := &core.TestResult{TestID: "b", Outcome: core.OutcomeFail}
	assert.Empty(t, Ensure(empty, DefaultVersion))
}
