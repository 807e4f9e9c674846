package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowModel = `'Sheet1'!A1 @= RTGET("feed")
'Sheet1'!B1 @= A1*2
'Sheet1'!C1 @= RTC(B1)
'Sheet1'!D1 @= OUTPUT(A1)
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAnalyzeText(t *testing.T) {
	out, err := execute(t, "", "analyze", writeFile(t, "model.txt", flowModel))
	require.NoError(t, err)

	assert.Equal(t, `loaded 4 formulas, 0 aliases, 0 values (0 diagnostics)
egress 'Sheet1'!C1: 3 records
  'Sheet1'!C1
  'Sheet1'!B1
  'Sheet1'!A1
egress 'Sheet1'!D1: 2 records
  'Sheet1'!D1
  'Sheet1'!A1
ingress 'Sheet1'!A1 -> 'Sheet1'!C1, 'Sheet1'!D1
`, out)
}

func TestAnalyzeStdinJSON(t *testing.T) {
	out, err := execute(t, flowModel, "analyze", "--json", "--workers", "1", "-")
	require.NoError(t, err)

	var result analysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 4, result.Formulas)
	require.Len(t, result.Egress, 2)
	assert.Equal(t, "'Sheet1'!C1", result.Egress[0].Root)
	assert.Equal(t, []string{"'Sheet1'!C1", "'Sheet1'!B1", "'Sheet1'!A1"}, result.Egress[0].Records)
	assert.Equal(t, []ingressCell{
		{Location: "'Sheet1'!A1", Consumers: []string{"'Sheet1'!C1", "'Sheet1'!D1"}},
	}, result.Ingress)
	assert.Empty(t, result.Diagnostics)
}

func TestAnalyzeUnresolved(t *testing.T) {
	input := writeFile(t, "model.txt", "'Sheet1'!C1 @= RTC(Z9)\n")

	out, err := execute(t, "", "analyze", input)
	require.NoError(t, err)
	assert.Contains(t, out, "unresolved: 'Sheet1'!C1 (line 1) references unknown 'Sheet1'!Z9")

	_, err = execute(t, "", "analyze", "--fail-on-unresolved", input)
	require.Error(t, err)
	assert.Equal(t, ExitUnresolved, exitCode(err))
}

func TestAnalyzeVisitBudget(t *testing.T) {
	out, err := execute(t, flowModel, "analyze", "--json", "--max-visits", "1", "-")
	require.NoError(t, err)

	var result analysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Egress, 2)
	assert.True(t, result.Egress[0].Truncated)
	assert.Len(t, result.Errors, 2)
}

func TestAnalyzeConfig(t *testing.T) {
	cfg := writeFile(t, "classification.yaml", "ingress: [RTGET]\negress: [PUBLISH]\n")
	model := flowModel + "'Sheet1'!E1 @= PUBLISH(B1)\n"

	out, err := execute(t, model, "analyze", "--json", "--config", cfg, "-")
	require.NoError(t, err)

	var result analysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Egress, 1)
	assert.Equal(t, "'Sheet1'!E1", result.Egress[0].Root)
}

func TestAnalyzeBadInput(t *testing.T) {
	_, err := execute(t, "", "analyze", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))

	_, err = execute(t, "", "analyze", "--config", writeFile(t, "c.toml", ""), "-")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))
}

func TestImpactFromDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "flow.db")
	_, err := execute(t, flowModel, "analyze", "--db", db, "-")
	require.NoError(t, err)

	out, err := execute(t, "", "impact", "--db", db, "'Sheet1'!A1")
	require.NoError(t, err)
	assert.Equal(t, "'Sheet1'!C1\n'Sheet1'!D1\n", out)

	out, err = execute(t, "", "impact", "--db", db, "--sheet", "Sheet1", "C1")
	require.NoError(t, err)
	assert.Equal(t, "no egress cell reads 'Sheet1'!C1\n", out)
}

func TestImpactInsideBlock(t *testing.T) {
	model := `'Sheet1'!A1:A10 @= RTGET("feed")
'Sheet1'!C1 @= RTC(A3)
`
	input := writeFile(t, "model.txt", model)
	db := filepath.Join(t.TempDir(), "flow.db")
	_, err := execute(t, "", "analyze", "--db", db, input)
	require.NoError(t, err)

	for _, source := range [][]string{{"--db", db}, {"--input", input}} {
		t.Run(source[0], func(t *testing.T) {
			out, err := execute(t, "", append([]string{"impact"}, append(source, "'Sheet1'!A3")...)...)
			require.NoError(t, err)
			assert.Equal(t, "'Sheet1'!C1\n", out)

			_, err = execute(t, "", append([]string{"impact"}, append(source, "'Sheet1'!B3")...)...)
			require.Error(t, err)
			assert.Equal(t, ExitInput, exitCode(err))
		})
	}
}

func TestImpactFromInput(t *testing.T) {
	input := writeFile(t, "model.txt", flowModel)

	out, err := execute(t, "", "impact", "--input", input, "'Sheet1'!B1")
	require.NoError(t, err)
	assert.Equal(t, "'Sheet1'!C1\n", out)

	_, err = execute(t, "", "impact", "--input", input, "'Sheet1'!Q7")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))
}

func TestImpactArguments(t *testing.T) {
	_, err := execute(t, "", "impact", "'Sheet1'!A1")
	assert.Error(t, err)

	_, err = execute(t, "", "impact", "--db", filepath.Join(t.TempDir(), "none"), "'Sheet1'!A1")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))

	_, err = execute(t, "", "impact", "--input", "x.txt", "A1")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))
}

func TestCompile(t *testing.T) {
	out, err := execute(t, "", "compile", "'Sheet1'!C1 @= RTC(A1*B1)")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "'Sheet1'!C1 [egress]\n"), out)
	assert.Contains(t, out, "CALL RTC(")

	out, err = execute(t, "", "compile", "--sheet", "Data", "=B1+1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "'Data'!A1 [none]\n"), out)

	out, err = execute(t, "", "compile", "rate := 'Inputs'!B2")
	require.NoError(t, err)
	assert.Equal(t, "rate (workbook) -> 'Inputs'!B2\n", out)

	_, err = execute(t, "", "compile", "B1+")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))

	_, err = execute(t, "", "compile", "rate := (")
	require.Error(t, err)
	assert.Equal(t, ExitInput, exitCode(err))
}

func TestCompileScopedNames(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sheet scoped", []string{"'Sheet1'!rate := $B$2"}, "rate (Sheet1) -> 'Sheet1'!B2\n"},
		{"unquoted scope", []string{"Data!local := 'Inputs'!A1:A3"}, "local (Data) -> 'Inputs'!A1:A3\n"},
		{"default sheet binds target", []string{"--sheet", "Data", "rate := B2"}, "rate (workbook) -> 'Data'!B2\n"},
		{"coordinate alias", []string{"'Sheet1'!D5 := E5"}, "D5 (Sheet1) -> 'Sheet1'!E5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"compile"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitUnresolved, exitCode(&ExitError{Code: ExitUnresolved}))
	assert.Equal(t, ExitInput, exitCode(inputError("bad %s", "input")))
}
