package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/bundlesplit/internal/config"
	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/output"
	"github.com/specialistvlad/bundlesplit/internal/watch"
)

// Watch builds once and then rebuilds whenever watched files change, until
// ctx is cancelled. A failed build is logged and does not stop watching.
func (a *App) Watch(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := ctxlog.FromContext(ctx)

	wcfg := config.Watch{}
	if a.config.Watch != nil {
		wcfg = *a.config.Watch
	}
	config.DefaultWatch(&wcfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if wcfg.HealthcheckPort > 0 {
		wait, err := a.startHealthcheckServer(ctx, fmt.Sprintf(":%d", wcfg.HealthcheckPort))
		if err != nil {
			return err
		}
		defer func() {
			cancel()
			wait()
		}()
	}

	rebuild := func(ctx context.Context) error {
		report, err := a.Build(ctx)
		a.status.record(report, err)
		return err
	}

	w, err := watch.New(watch.Config{
		BaseDir:  a.root,
		Paths:    wcfg.Paths,
		Patterns: wcfg.Patterns,
		Ignore:   append(append([]string(nil), wcfg.Ignore...), a.ownOutputs()...),
		Debounce: wcfg.Debounce,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Info("Change detected, rebuilding.", "changed", changed)
			return rebuild(ctx)
		},
	})
	if err != nil {
		return err
	}

	if err := rebuild(ctx); err != nil {
		logger.Error("Initial build failed.", "error", err)
	}
	logger.Info("👀 Watching for changes...", "root", a.root, "patterns", wcfg.Patterns)
	return w.Run(ctx)
}

// ownOutputs lists root-relative patterns for the files a build writes, so
// that writing them does not trigger another build.
func (a *App) ownOutputs() []string {
	var patterns []string
	add := func(path, glob string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		rel, err := filepath.Rel(a.root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return
		}
		rel = filepath.ToSlash(rel)
		if glob != "" {
			if rel == "." {
				rel = glob
			} else {
				rel += "/" + glob
			}
		}
		patterns = append(patterns, rel)
	}
	if a.config.S3 == nil {
		add(a.config.Output, bundleGlob(a.config.Filename))
	}
	add(a.config.Manifest, "")
	for _, p := range []string{a.config.Main, a.config.Rows} {
		if p != "" && p != stdio {
			add(p, "")
		}
	}
	return patterns
}

// bundleGlob matches every filename a template expands to.
func bundleGlob(template string) string {
	if !strings.Contains(template, output.Placeholder) {
		return "bundle.*.js"
	}
	return strings.ReplaceAll(template, output.Placeholder, "*")
}
