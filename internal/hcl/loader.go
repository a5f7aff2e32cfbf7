package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/bundlesplit/internal/config"
	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the file at path and merges it over config.Defaults.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(path), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if attrs, _ := root.Remain.JustAttributes(); len(attrs) > 0 {
		for name := range attrs {
			logger.Warn("Ignoring unknown configuration attribute.", "path", path, "attribute", name)
		}
	}

	model, err := translate(&root)
	if err != nil {
		return nil, fmt.Errorf("in %s: %w", path, err)
	}
	logger.Debug("HCL loading complete.", "s3", model.S3 != nil, "notify", model.Notify != nil, "watch", model.Watch != nil)
	return model, nil
}

// translate converts the decoded schema into the agnostic model.
func translate(root *fileRoot) (*config.Model, error) {
	m := config.Defaults()
	setString(&m.Graph, root.Graph)
	setString(&m.Root, root.Root)
	setString(&m.Output, root.Output)
	setString(&m.Prefix, root.Prefix)
	setString(&m.Filename, root.Filename)
	setString(&m.Manifest, root.Manifest)
	setString(&m.Main, root.Main)
	setString(&m.Rows, root.Rows)
	setString(&m.RowsFormat, root.RowsFormat)
	setString(&m.Runtime, root.Runtime)
	if root.HashNames != nil {
		m.HashNames = *root.HashNames
	}
	if root.WriteEmptyManifest != nil {
		m.WriteEmptyManifest = *root.WriteEmptyManifest
	}

	if b := root.S3; b != nil {
		m.S3 = &config.S3{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
			KeyPrefix: b.KeyPrefix,
			UseSSL:    b.UseSSL,
		}
	}
	if b := root.Notify; b != nil {
		timeout, err := parseDuration("notify.timeout", b.Timeout)
		if err != nil {
			return nil, err
		}
		m.Notify = &config.Notify{URL: b.URL, Namespace: b.Namespace, Event: b.Event, Timeout: timeout}
		config.DefaultNotify(m.Notify)
	}
	if b := root.Watch; b != nil {
		debounce, err := parseDuration("watch.debounce", b.Debounce)
		if err != nil {
			return nil, err
		}
		m.Watch = &config.Watch{
			Paths:           b.Paths,
			Patterns:        b.Patterns,
			Ignore:          b.Ignore,
			Debounce:        debounce,
			HealthcheckPort: b.HealthcheckPort,
		}
		config.DefaultWatch(m.Watch)
	}
	if b := root.Log; b != nil {
		if b.Level != "" {
			m.Log.Level = b.Level
		}
		if b.Format != "" {
			m.Log.Format = b.Format
		}
	}
	return m, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
