// Package metricname implements an analyzer that checks metric name literals.
package metricname

import (
	"go/ast"
	"go/constant"
	"go/types"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"

	"github.com/and161185/toolkit-telemetry/internal/sanitize"
)

// Analyzer reports MetricDatum literals whose constant MetricName would be
// altered or emptied by the sanitizer before sending.
var Analyzer = &analysis.Analyzer{
	Name: "metricname",
	Doc:  "report metric names containing characters the telemetry sanitizer strips",
	Run:  run,
}

func run(pass *analysis.Pass) (any, error) {
	for _, f := range pass.Files {
		if isGenerated(f) || importsTesting(f) {
			continue
		}

		ast.Inspect(f, func(n ast.Node) bool {
			lit, ok := n.(*ast.CompositeLit)
			if !ok || !isMetricDatum(pass.TypesInfo.TypeOf(lit)) {
				return true
			}
			for _, elt := range lit.Elts {
				kv, ok := elt.(*ast.KeyValueExpr)
				if !ok {
					continue
				}
				if key, ok := kv.Key.(*ast.Ident); !ok || key.Name != "MetricName" {
					continue
				}
				checkName(pass, kv.Value)
			}
			return true
		})
	}
	return nil, nil
}

func checkName(pass *analysis.Pass, expr ast.Expr) {
	tv, ok := pass.TypesInfo.Types[expr]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		return
	}
	name := constant.StringVal(tv.Value)
	clean := sanitize.MetricName(name)
	switch {
	case clean == "":
		pass.Reportf(expr.Pos(), "metric name %q is empty after sanitizing and will be dropped", name)
	case clean != name:
		pass.Reportf(expr.Pos(), "metric name %q will be sent as %q", name, clean)
	}
}

func isMetricDatum(t types.Type) bool {
	if t == nil {
		return false
	}
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	named, ok := t.(*types.Named)
	return ok && named.Obj().Name() == "MetricDatum"
}

func isGenerated(f *ast.File) bool {
	for _, cg := range f.Comments {
		for _, c := range cg.List {
			if strings.Contains(c.Text, "Code generated") && strings.Contains(c.Text, "DO NOT EDIT") {
				return true
			}
		}
	}
	return false
}

func importsTesting(f *ast.File) bool {
	for _, im := range f.Imports {
		if p, _ := strconv.Unquote(im.Path.Value); p == "testing" {
			return true
		}
	}
	return false
}
