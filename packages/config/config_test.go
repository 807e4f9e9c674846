package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, spreadsheet.DefaultIngressFunctions, c.Ingress)
	assert.Equal(t, spreadsheet.DefaultEgressFunctions, c.Egress)

	c.Ingress[0] = "CHANGED"
	assert.Equal(t, "RTGET", Default().Ingress[0], "Default returns a copy")
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "classification.yaml", "ingress: [feed, rtget]\n")

	c, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"feed", "rtget"}, c.Ingress)
	assert.Equal(t, []string{"RTC", "OUTPUT"}, c.Egress, "omitted keys keep the default")

	classifier, err := c.Classifier()
	require.NoError(t, err)
	assert.Equal(t, []string{"FEED", "RTGET"}, classifier.IngressFunctions())
}

func TestLoadYAMLRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key": "ingres: [RTGET]\n",
		"wrong type":  "ingress: {a: b}\n",
		"not yaml":    "ingress: [RTGET\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), writeFile(t, "c.yml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	c, err := Load(context.Background(), writeFile(t, "c.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadEmptyListFailsClassifier(t *testing.T) {
	c, err := Load(context.Background(), writeFile(t, "c.yaml", "egress: []\n"))
	require.NoError(t, err)
	_, err = c.Classifier()
	assert.ErrorIs(t, err, spreadsheet.ErrEmptyFunctionSet)
}

func TestLoadHCL(t *testing.T) {
	path := writeFile(t, "classification.hcl", `
ingress = distinct(concat(defaults.ingress, ["FEED", "NOW"]))
egress  = [upper("publish")]
`)

	c, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"RTGET", "TR", "TODAY", "NOW", "FEED"}, c.Ingress)
	assert.Equal(t, []string{"PUBLISH"}, c.Egress)
}

func TestLoadHCLDefaults(t *testing.T) {
	c, err := Load(context.Background(), writeFile(t, "c.hcl", `egress = ["RTC"]`))
	require.NoError(t, err)
	assert.Equal(t, Default().Ingress, c.Ingress)
	assert.Equal(t, []string{"RTC"}, c.Egress)
}

func TestLoadHCLRejects(t *testing.T) {
	tests := map[string]string{
		"unknown attribute": `ingres = ["RTGET"]`,
		"syntax":            `ingress = [`,
		"unknown variable":  `ingress = other.ingress`,
		"wrong type":        `ingress = { a = 1 }`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), writeFile(t, "c.hcl", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileChecks(t *testing.T) {
	before := testutil.ToFloat64(configLoadErrors)

	_, err := Load(context.Background(), writeFile(t, "c.json", "{}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	big := writeFile(t, "big.yaml", "# "+strings.Repeat("x", MaxConfigFileSize)+"\n")
	_, err = Load(context.Background(), big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Equal(t, before+3, testutil.ToFloat64(configLoadErrors))
}

func TestLoadCountsByFormat(t *testing.T) {
	before := testutil.ToFloat64(configLoads.WithLabelValues("hcl"))
	_, err := Load(context.Background(), writeFile(t, "c.hcl", `egress = ["RTC"]`))
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(configLoads.WithLabelValues("hcl")))
}
