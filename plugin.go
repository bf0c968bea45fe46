package beanpipe

import "fmt"

// Plugin validates or enriches a directive stream. It returns the (possibly
// annotated) stream plus the diagnostics it collected. A non-nil error is
// fatal: the run aborts and the returned stream must be discarded.
//
// Plugins never mutate directives except by adding new metadata keys, so a
// stream can safely flow through a pipeline of them.
type Plugin interface {
	Name() string
	Run(entries []Directive) ([]Directive, []Diagnostic, error)
}

// Pipeline runs each plugin in order over the stream, accumulating
// diagnostics. The first fatal error aborts the pipeline, wrapped with the
// failing plugin's name.
func Pipeline(entries []Directive, plugins ...Plugin) ([]Directive, []Diagnostic, error) {
	var diags []Diagnostic
	for _, p := range plugins {
		var ds []Diagnostic
		var err error
		entries, ds, err = p.Run(entries)
		if err != nil {
			return nil, diags, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		diags = append(diags, ds...)
	}
	return entries, diags, nil
}
