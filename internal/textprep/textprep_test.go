package textprep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareWeightsTitleAndAbstract(t *testing.T) {
	v := Prepare(Source{
		Title:      "Novel Framework",
		Abstract:   "We Present",
		Categories: []string{"cs.AI", " "},
		FullText:   "x",
	})

	assert.Equal(t, 3, strings.Count(v.Text, "novel framework"))
	assert.Equal(t, 2, strings.Count(v.Text, "we present"))
	assert.Contains(t, v.Text, "cs.ai")
	assert.Equal(t, "novel framework", v.Title)
	assert.True(t, v.HasFullText)
}

func TestPrepareWithoutFullTextBoostsTitle(t *testing.T) {
	v := Prepare(Source{Title: "Survey", Abstract: "Overview"})
	assert.Equal(t, 4, strings.Count(v.Text, "survey"))
	assert.Equal(t, 3, strings.Count(v.Text, "overview"))
	assert.False(t, v.HasFullText)
}

func TestPrepareSlicesFullText(t *testing.T) {
	// 100 runes: intro [0,20), conclusion [85,100), middle every 10th of [30,70).
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteRune(rune('a' + i%26))
	}
	full := b.String()
	r := []rune(full)

	intro, conclusion, middle := sections(r)
	assert.Equal(t, string(r[:20]), intro)
	assert.Equal(t, string(r[85:]), conclusion)
	assert.Equal(t, string([]rune{r[30], r[40], r[50], r[60]}), middle)
}

func TestPrepareMultibyteSafe(t *testing.T) {
	full := strings.Repeat("é漢字", 50)
	v := Prepare(Source{Title: "t", FullText: full})
	for _, r := range v.Text {
		require.NotEqual(t, '�', r, "view must not split runes")
	}
}

func TestPrepareIsPure(t *testing.T) {
	src := Source{Title: "A", Abstract: "B", Categories: []string{"c"}, FullText: "body text"}
	assert.Equal(t, Prepare(src), Prepare(src))
	assert.Equal(t, []string{"c"}, src.Categories)
}

func TestFullView(t *testing.T) {
	got := FullView(Source{Title: "T", Abstract: "A", Categories: []string{"x", "y"}, FullText: "Body"})
	assert.Equal(t, "Title: T\n\nAbstract: A\n\nCategories: x, y\n\nContent: Body", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "漢字", Truncate("漢字テキスト", 2))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
