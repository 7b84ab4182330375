package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/index"
)

// fixtureContract is a converted agreement small enough to ingest in a
// test but exercising every stage: articles with sections, an LOU, and
// an Appendix A wage grid.
const fixtureContract = "# RETAIL AGREEMENT\n\n" +
	"This Agreement is effective January 23, 2022 through January 18, 2025 between Safeway Inc. and UFCW Local 7.\n\n" +
	"## ARTICLE 1\n## RECOGNITION\n\n" +
	"Section 1. BARGAINING UNIT. The Employer recognizes the Union as the sole collective bargaining agency for all employees working in the Employer's retail stores in Pueblo County, excluding store managers and assistant store managers as provided herein.\n\n" +
	"Section 2. NEW HIRES. New employees shall be reported to the Union within fourteen days of employment, and shall make application for membership after thirty days of continuous service in the bargaining unit.\n\n" +
	"## ARTICLE 12\n## OVERTIME\n\n" +
	"Section 28. OVERTIME RATES. Overtime at the rate of time and one-half the regular hourly rate shall be paid for all work performed in excess of eight hours per day or forty hours per week, scheduled in accordance with department practice.\n\n" +
	"## Letter of Understanding #2\n\n" +
	"The parties agree that remodel grand opening work shall be offered first to bargaining unit employees before being assigned to employees from other stores or locations.\n\n" +
	"# APPENDIX A\n\n" +
	"Wage schedules for all classifications covered by this Agreement.\n\n" +
	"<table>\n" +
	"<tr><td>CLASSIFICATION</td><td>Effective</td><td>Effective</td><td>Effective</td></tr>\n" +
	"<tr><td></td><td>1/23/2022</td><td>1/22/2023</td><td>1/21/2024</td></tr>\n" +
	"<tr><td colspan=\"4\">ALL PURPOSE CLERK</td></tr>\n" +
	"<tr><td>Start</td><td>$17.02</td><td>$18.02</td><td>$19.02</td></tr>\n" +
	"<tr><td>After 2080 hours</td><td>$17.82</td><td>$18.82</td><td>$19.82</td></tr>\n" +
	"<tr><td colspan=\"4\">COURTESY CLERK</td></tr>\n" +
	"<tr><td>Start</td><td>$13.65</td><td>$14.65</td><td>$15.65</td></tr>\n" +
	"</table>\n"

func writeFixtureContract(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Safeway Pueblo Clerks 2022.md")
	require.NoError(t, os.WriteFile(path, []byte(fixtureContract), 0o644))
	return path
}

// runSteward executes a fresh root command and returns its stdout.
func runSteward(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// ingestFixture publishes the fixture contract into a fresh data
// directory and returns it. The environment is scrubbed so nothing
// reaches the network or the real home directory.
func ingestFixture(t *testing.T) string {
	t.Helper()
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")

	dataDir := t.TempDir()
	source := writeFixtureContract(t, t.TempDir())

	_, err := runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", source, "--offline", "--no-tui")
	require.NoError(t, err)
	return dataDir
}

func TestIngestCmd_PublishesGeneration(t *testing.T) {
	// Given: the fixture contract, ingested offline
	dataDir := ingestFixture(t)

	// Then: a CURRENT generation exists with readable meta
	gens := index.NewGenerations(dataDir)
	id, err := gens.Current()
	require.NoError(t, err)

	meta, err := index.LoadMeta(gens.Paths(id).Meta)
	require.NoError(t, err)
	assert.Equal(t, "safeway_pueblo_clerks_2022", meta.ContractID)
	assert.Greater(t, meta.Chunks, 0)
	assert.Equal(t, 2, meta.Articles)
	assert.Equal(t, 2, meta.WageClassifications)
	assert.Equal(t, "static", meta.EmbedModel)
}

func TestIngestCmd_ContractIDOverride(t *testing.T) {
	// Given: a clean environment
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()
	source := writeFixtureContract(t, t.TempDir())

	// When: ingesting with --contract-id
	_, err := runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", source, "--offline", "--no-tui", "--contract-id", "local7_meat_2023")
	require.NoError(t, err)

	// Then: the published meta carries the override
	gens := index.NewGenerations(dataDir)
	id, err := gens.Current()
	require.NoError(t, err)
	meta, err := index.LoadMeta(gens.Paths(id).Meta)
	require.NoError(t, err)
	assert.Equal(t, "local7_meat_2023", meta.ContractID)
}

func TestIngestCmd_MissingFile(t *testing.T) {
	// Given: a path that does not exist
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()

	// When: ingesting it
	_, err := runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", filepath.Join(dataDir, "nope.md"), "--offline", "--no-tui")

	// Then: the run fails without publishing anything
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	gens := index.NewGenerations(dataDir)
	_, err = gens.Current()
	assert.Error(t, err, "A failed ingest must not publish a generation")
}

func TestIngestCmd_RejectsDirectory(t *testing.T) {
	// Given: a directory where a contract file should be
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()

	// When: ingesting the directory itself
	_, err := runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", t.TempDir(), "--offline", "--no-tui")

	// Then: it should refuse
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestIngestCmd_DiscoversSingleContract(t *testing.T) {
	// Given: a project directory holding exactly one contract file
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()
	projectDir := t.TempDir()
	writeFixtureContract(t, projectDir)

	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(projectDir))
	defer func() { _ = os.Chdir(oldDir) }()

	// When: ingesting with no argument
	_, err = runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", "--offline", "--no-tui")

	// Then: discovery finds and ingests the file
	require.NoError(t, err)
	gens := index.NewGenerations(dataDir)
	id, err := gens.Current()
	require.NoError(t, err)
	meta, err := index.LoadMeta(gens.Paths(id).Meta)
	require.NoError(t, err)
	assert.Equal(t, "safeway_pueblo_clerks_2022", meta.ContractID)
}

func TestIngestCmd_NoContractFound(t *testing.T) {
	// Given: an empty project directory
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()
	projectDir := t.TempDir()

	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(projectDir))
	defer func() { _ = os.Chdir(oldDir) }()

	// When: ingesting with no argument
	_, err = runSteward(t, "--data-dir", dataDir, "--quiet",
		"ingest", "--offline", "--no-tui")

	// Then: the error tells the user to pass the file explicitly
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contract markdown file found")
}
