package trcio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcio"
	"github.com/trc-go/trc/internal/trcresult"
)

const fixture = `<database>
  <test name="suite/basic" type="script">
    <iter result="PASSED">
      <arg name="first">alpha</arg>
      <arg name="second">beta</arg>
      <notes>baseline case</notes>
      <results tags="linux" key="BUG-1">
        <result value="FAILED">
          <verdict>timeout</verdict>
        </result>
      </results>
    </iter>
    <!-- trc:include vendor-cases -->
    <iter result="SKIPPED">
      <arg name="first">gamma</arg>
    </iter>
    <!-- trc:include-end -->
  </test>
</database>`

func writeFixture(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadParsesTree(t *testing.T) {
	path := writeFixture(t, fixture)

	db, err := trcio.Load(context.Background(), path)
	require.NoError(t, err)

	root := db.Root()
	tests := db.Children(root)
	require.Len(t, tests, 1)

	testID := tests[0]
	require.Equal(t, "suite/basic", db.TestName(testID))
	require.Equal(t, "script", db.TestType(testID))

	iters := db.Children(testID)
	require.Len(t, iters, 1, "the included iter is opaque raw content, not a tree node")

	iterID := iters[0]
	require.Equal(t, trcresult.StatusPassed, db.DefaultStatus(iterID))
	require.Equal(t, trcdb.NamedArgs("first", "alpha", "second", "beta"), db.Args(iterID))
	require.Equal(t, "baseline case", db.Notes(iterID))

	sets := db.ExpectSets(iterID)
	require.Len(t, sets, 1)
	require.Equal(t, "linux", sets[0].Tags)
	require.Equal(t, "BUG-1", sets[0].Key)
	require.Len(t, sets[0].Entries, 1)
	require.Equal(t, trcresult.StatusFailed, sets[0].Entries[0].Result.Status)
	require.Equal(t, []trcresult.Verdict{"timeout"}, sets[0].Entries[0].Result.Verdicts)

	markers := db.IncludeMarkers(testID)
	require.Len(t, markers, 1)
	require.Equal(t, "vendor-cases", markers[0].Name)
	require.Contains(t, string(markers[0].Raw), "gamma")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := writeFixture(t, fixture)

	db, err := trcio.Load(context.Background(), path)
	require.NoError(t, err)

	savePath := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, trcio.Save(context.Background(), db, savePath, trcio.SaveOptions{}))

	reloaded, err := trcio.Load(context.Background(), savePath)
	require.NoError(t, err)

	require.Equal(t, db.Children(db.Root()), reloaded.Children(reloaded.Root()))

	origTest := db.Children(db.Root())[0]
	newTest := reloaded.Children(reloaded.Root())[0]
	require.Equal(t, db.TestName(origTest), reloaded.TestName(newTest))

	origIter := db.Children(origTest)[0]
	newIter := reloaded.Children(newTest)[0]
	require.Equal(t, db.Args(origIter), reloaded.Args(newIter))
	require.Equal(t, db.ExpectSets(origIter), reloaded.ExpectSets(newIter))

	markers := reloaded.IncludeMarkers(newTest)
	require.Len(t, markers, 1)
	require.Equal(t, "vendor-cases", markers[0].Name)
}

func TestSaveSkipsUnemittedSubtree(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("keep", true)
	w.StepBack()

	w.StepToTest("drop", true)
	dropID, _ := w.Current()
	db.SetEmit(dropID, false)

	savePath := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, trcio.Save(context.Background(), db, savePath, trcio.SaveOptions{}))

	reloaded, err := trcio.Load(context.Background(), savePath)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, id := range reloaded.Children(reloaded.Root()) {
		names = append(names, reloaded.TestName(id))
	}

	require.Equal(t, []string{"keep"}, names)
}

func TestLoadParsesGlobalsObjectiveAndTestNotes(t *testing.T) {
	path := writeFixture(t, `<database>
  <globals>shared config blob</globals>
  <test name="suite/basic">
    <objective>verifies basic startup</objective>
    <notes>owned by platform team</notes>
    <iter result="PASSED"></iter>
  </test>
</database>`)

	db, err := trcio.Load(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, "shared config blob", db.Globals())

	testID := db.Children(db.Root())[0]
	require.Equal(t, "verifies basic startup", db.Objective(testID))
	require.Equal(t, "owned by platform team", db.Notes(testID))

	savePath := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, trcio.Save(context.Background(), db, savePath, trcio.SaveOptions{}))

	reloaded, err := trcio.Load(context.Background(), savePath)
	require.NoError(t, err)
	require.Equal(t, "shared config blob", reloaded.Globals())

	newTest := reloaded.Children(reloaded.Root())[0]
	require.Equal(t, "verifies basic startup", reloaded.Objective(newTest))
	require.Equal(t, "owned by platform team", reloaded.Notes(newTest))
}

func TestLoadMalformedDocument(t *testing.T) {
	path := writeFixture(t, `<database><test name="x"><bogus/></test></database>`)

	_, err := trcio.Load(context.Background(), path)
	require.Error(t, err)
}

func TestLoadArgMissingNameIsRejected(t *testing.T) {
	path := writeFixture(t, `<database><test name="suite/basic"><iter><arg>alpha</arg></iter></test></database>`)

	_, err := trcio.Load(context.Background(), path)
	require.Error(t, err)
}

func TestLoadStrayIncludeEnd(t *testing.T) {
	path := writeFixture(t, `<database><!-- trc:include-end --></database>`)

	_, err := trcio.Load(context.Background(), path)
	require.Error(t, err)
}
