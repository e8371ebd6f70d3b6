package tagrules_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/tagrules"
)

func writeRules(t *testing.T, doc string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	return path
}

func TestInitMissingFileYieldsPassthroughTable(t *testing.T) {
	table, err := tagrules.Init(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, "BUG-1234", table.Substitute("URL", "BUG-1234"))
	require.NoError(t, table.Close())
}

func TestInitEmptyPathYieldsPassthroughTable(t *testing.T) {
	table, err := tagrules.Init("")
	require.NoError(t, err)

	require.Equal(t, "anything", table.Substitute("URL", "anything"))
}

func TestSubstituteAppliesFirstMatchingRule(t *testing.T) {
	doc := `
namespaces:
  - name: URL
    rules:
      - pattern: '^BUG-(\d+)$'
        template: 'https://tracker.example.com/issue/$1'
      - pattern: '.*'
        template: 'https://tracker.example.com/search?q=$0'
`
	table, err := tagrules.Init(writeRules(t, doc))
	require.NoError(t, err)

	require.Equal(t, "https://tracker.example.com/issue/1234", table.Substitute("URL", "BUG-1234"))
	require.Equal(t, "https://tracker.example.com/search?q=NOTABUG", table.Substitute("URL", "NOTABUG"))
}

func TestSubstituteUnknownNamespacePassesThrough(t *testing.T) {
	table, err := tagrules.Init(writeRules(t, "namespaces: []"))
	require.NoError(t, err)

	require.Equal(t, "x", table.Substitute("TAGS", "x"))
}
