package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

func records(positions ...string) []jobs.Record {
	out := make([]jobs.Record, len(positions))
	for i, p := range positions {
		out[i] = jobs.Record{Position: p, URL: p}
	}
	return out
}

func TestApplyCaseInsensitiveUnion(t *testing.T) {
	t.Parallel()

	in := records("Senior PYTHON Engineer", "Go Developer", "Data Analyst", "", "golang lead")
	got := New([]string{"python", "Go"}).Apply(in)

	require.Len(t, got, 3)
	assert.Equal(t, "Senior PYTHON Engineer", got[0].Position)
	assert.Equal(t, "Go Developer", got[1].Position)
	assert.Equal(t, "golang lead", got[2].Position)
}

func TestApplyQuotesRegexMetacharacters(t *testing.T) {
	t.Parallel()

	m := New([]string{"C++", "node.js"})
	assert.True(t, m.Match("Senior C++ Developer"))
	assert.True(t, m.Match("Node.JS backend"))
	assert.False(t, m.Match("nodexjs"))
	assert.False(t, m.Match("C Developer"))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := records("Python Dev", "Java Dev")
	snapshot := append([]jobs.Record(nil), in...)
	out := New([]string{"python"}).Apply(in)
	require.Len(t, out, 1)
	out[0].Position = "changed"
	assert.Equal(t, snapshot, in)
}

func TestNoKeywordsKeepsEveryPosition(t *testing.T) {
	t.Parallel()

	for _, kws := range [][]string{nil, {" ", ""}} {
		m := New(kws)
		assert.Empty(t, m.Keywords())
		got := m.Apply(records("Python Dev", "", "Accountant"))
		require.Len(t, got, 2)
		assert.Equal(t, "Python Dev", got[0].Position)
		assert.Equal(t, "Accountant", got[1].Position)
	}
}

func TestKeywordsDeduplicated(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Python", "Go"}, New([]string{"Python", " python ", "Go"}).Keywords())
}

// Every retained record mentions a keyword and the output is a subset of the input.
func FuzzApplySubset(f *testing.F) {
	f.Add("python", "Senior Python Dev")
	f.Add("GO", "golang")
	f.Add("", "anything")
	f.Fuzz(func(t *testing.T, keyword, position string) {
		in := records(position, "unrelated")
		out := New([]string{keyword}).Apply(in)
		if len(out) > len(in) {
			t.Fatalf("output larger than input")
		}
		kw := strings.ToLower(strings.TrimSpace(keyword))
		for _, r := range out {
			if r.Position == "" {
				t.Fatalf("empty position retained for keyword %q", keyword)
			}
			if kw != "" && !strings.Contains(strings.ToLower(r.Position), kw) {
				t.Fatalf("record %q retained for keyword %q", r.Position, keyword)
			}
		}
	})
}
