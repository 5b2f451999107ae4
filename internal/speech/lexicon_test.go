package speech

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLexicon(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pronunciation.rules")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLexiconLiteralAndSedRewrites(t *testing.T) {
	t.Parallel()

	path := writeLexicon(t, `
# spell out colour codes
RGB => R G B
s/(\d+)\s*%/$1 percent/g
`)
	lex, err := Load(path, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, lex.Len())

	out, err := lex.Apply("rgb value at 40% and 7 %")
	require.NoError(t, err)
	assert.Equal(t, "R G B value at 40 percent and 7 percent", out)
}

func TestLexiconSedWithoutGlobalRewritesFirstMatchPerPass(t *testing.T) {
	t.Parallel()

	lex, err := Load(writeLexicon(t, "s/cm/centimetres/\n"), 1)
	require.NoError(t, err)

	out, err := lex.Apply("3 cm by 4 cm")
	require.NoError(t, err)
	assert.Equal(t, "3 centimetres by 4 cm", out)
}

func TestLexiconRunsUntilStable(t *testing.T) {
	t.Parallel()

	lex, err := Load(writeLexicon(t, "a => b\nb => c\n"), 5)
	require.NoError(t, err)

	out, err := lex.Apply("a")
	require.NoError(t, err)
	assert.Equal(t, "c", out)
}

func TestLexiconMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	lex, err := Load(filepath.Join(t.TempDir(), "absent.rules"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, lex.Len())

	out, err := lex.Apply("unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}

func TestLexiconRejectsInvalidLines(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no operator":    "just words\n",
		"empty source":   " => x\n",
		"bad flag":       "s/a/b/q\n",
		"unterminated":   "s/a/b\n",
		"bad expression": "s/(/x/\n",
	}
	for name, source := range cases {
		source := source
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeLexicon(t, source), 0)
			assert.Error(t, err)
		})
	}
}

func TestSplitDelimitedKeepsRegexEscapes(t *testing.T) {
	t.Parallel()

	got, rest, err := splitDelimited(`a\/b\d/tail`, '/')
	require.NoError(t, err)
	assert.Equal(t, `a/b\d`, got)
	assert.Equal(t, "tail", rest)
}
