// Package config loads the classification configuration: which function
// names mark a formula as ingress and which mark it as egress.
//
// YAML and HCL files are accepted. The HCL form may build its lists from
// the defaults:
//
//	ingress = concat(defaults.ingress, ["FEED"])
//	egress  = ["PUBLISH"]
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

// MaxConfigFileSize is the largest configuration file Load will read (1MB).
const MaxConfigFileSize = 1024 * 1024

//go:embed classification.yaml
var defaultClassificationYAML []byte

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor HCL.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrFileTooLarge is returned for files over MaxConfigFileSize.
	ErrFileTooLarge = errors.New("config file too large")
)

var (
	configLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadflow_config_loads_total",
		Help: "Classification config loads by format",
	}, []string{"format"})

	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadflow_config_load_errors_total",
		Help: "Classification config loads that failed",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadflow_config_load_duration_seconds",
		Help:    "Duration of classification config loading",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05},
	})
)

var tracer = otel.Tracer("spreadflow.config")

// Classification lists the function names per kind. names are matched
// case-insensitively by the classifier.
type Classification struct {
	Ingress []string `yaml:"ingress" hcl:"ingress,optional"`
	Egress  []string `yaml:"egress" hcl:"egress,optional"`
}

// Default returns the embedded classification. the result is a fresh copy
// the caller may modify.
func Default() *Classification {
	c := &Classification{}
	if err := yaml.Unmarshal(defaultClassificationYAML, c); err != nil {
		return &Classification{
			Ingress: slices.Clone(spreadsheet.DefaultIngressFunctions),
			Egress:  slices.Clone(spreadsheet.DefaultEgressFunctions),
		}
	}
	return c
}

// Classifier builds the core classifier. an empty list is an error.
func (c *Classification) Classifier() (*spreadsheet.Classifier, error) {
	return spreadsheet.NewClassifier(c.Ingress, c.Egress)
}

// Load reads a classification file. the format follows the extension:
// .yaml and .yml for YAML, .hcl for HCL. keys left out keep their default.
func Load(ctx context.Context, path string) (*Classification, error) {
	ctx, span := tracer.Start(ctx, "config.Load",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(start).Seconds())
	}()

	c, format, err := load(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		configLoadErrors.Inc()
		return nil, err
	}

	configLoads.WithLabelValues(format).Inc()
	span.SetAttributes(
		attribute.String("format", format),
		attribute.Int("ingress_count", len(c.Ingress)),
		attribute.Int("egress_count", len(c.Egress)),
	)
	logging.FromContext(ctx).Debug("classification loaded",
		"path", path,
		"format", format,
		"ingress", strings.Join(c.Ingress, ","),
		"egress", strings.Join(c.Egress, ","))
	return c, nil
}

func load(path string) (*Classification, string, error) {
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".hcl":
		format = "hcl"
	default:
		return nil, "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, format, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, format, fmt.Errorf("%s is %d bytes (max %d): %w", path, info.Size(), MaxConfigFileSize, ErrFileTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, format, fmt.Errorf("reading config: %w", err)
	}

	var c *Classification
	if format == "yaml" {
		c, err = ParseYAML(data)
	} else {
		c, err = ParseHCL(data, path)
	}
	if err != nil {
		return nil, format, fmt.Errorf("%s: %w", path, err)
	}
	return c, format, nil
}

// ParseYAML decodes YAML on top of the defaults. unknown keys are rejected.
func ParseYAML(data []byte) (*Classification, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// an empty document keeps the defaults
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	return c, nil
}

// ParseHCL decodes HCL attributes. expressions can read defaults.ingress
// and defaults.egress and call concat, distinct and upper.
func ParseHCL(data []byte, filename string) (*Classification, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing HCL: %w", diags)
	}

	defaults := Default()
	var decoded Classification
	diags = gohcl.DecodeBody(file.Body, evalContext(defaults), &decoded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding HCL: %w", diags)
	}

	if decoded.Ingress == nil {
		decoded.Ingress = defaults.Ingress
	}
	if decoded.Egress == nil {
		decoded.Egress = defaults.Egress
	}
	return &decoded, nil
}

func evalContext(defaults *Classification) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"defaults": cty.ObjectVal(map[string]cty.Value{
				"ingress": stringList(defaults.Ingress),
				"egress":  stringList(defaults.Egress),
			}),
		},
		Functions: map[string]function.Function{
			"concat":   stdlib.ConcatFunc,
			"distinct": stdlib.DistinctFunc,
			"upper":    stdlib.UpperFunc,
		},
	}
}

func stringList(names []string) cty.Value {
	if len(names) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(names))
	for i, name := range names {
		vals[i] = cty.StringVal(name)
	}
	return cty.ListVal(vals)
}
