// pkg/patch/engine_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: regexp2
// PURPOSE: Test operation positions, error policies, reversal, dry-run and theme copies

package patch_test

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFiles is a FileAccess over a map
type memFiles struct {
	files    map[string]string
	readonly map[string]bool
	writes   []string
}

func newFiles(files map[string]string) *memFiles {
	return &memFiles{files: files, readonly: map[string]bool{}}
}

func (m *memFiles) Read(path string) ([]byte, error) {
	s, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(s), nil
}

func (m *memFiles) Exists(path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *memFiles) Writable(path string) bool { return !m.readonly[path] }

func (m *memFiles) Write(path string, data []byte) error {
	m.files[path] = string(data)
	m.writes = append(m.writes, path)
	return nil
}

const phpFile = "<?php\nfunction a()\n{\n\treturn true;\n}\n?>\n"

func singleFile(ops ...patch.EditOperation) *patch.Script {
	return &patch.Script{ID: "t", Files: []patch.FileEdit{{Path: "/f.php", ErrorPolicy: patch.FileFatal, Operations: ops}}}
}

func op(pos patch.Position, search, add string) patch.EditOperation {
	return patch.EditOperation{Search: search, Replace: add, Position: pos, ErrorPolicy: patch.PolicyFatal}
}

func TestApply_Positions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		op      patch.EditOperation
		want    string
	}{
		{
			name:    "replace",
			content: phpFile,
			op:      op(patch.PositionReplace, "return true;", "return false;"),
			want:    "<?php\nfunction a()\n{\n\treturn false;\n}\n?>\n",
		},
		{
			name:    "before",
			content: phpFile,
			op:      op(patch.PositionBefore, "function a()", "// doc\n"),
			want:    "<?php\n// doc\nfunction a()\n{\n\treturn true;\n}\n?>\n",
		},
		{
			name:    "after_keeps_dollar_literal",
			content: phpFile,
			op:      op(patch.PositionAfter, "{", "\n\tglobal $x, $1;"),
			want:    "<?php\nfunction a()\n{\n\tglobal $x, $1;\n\treturn true;\n}\n?>\n",
		},
		{
			name:    "end_before_close_marker",
			content: phpFile,
			op:      op(patch.PositionEnd, "", "function b() {}\n"),
			want:    "<?php\nfunction a()\n{\n\treturn true;\n}\nfunction b() {}\n?>\n",
		},
		{
			name:    "end_of_file",
			content: "a\n",
			op:      op(patch.PositionEnd, "", "Z"),
			want:    "a\nZ",
		},
		{
			name:    "literal_metacharacters",
			content: "x = f(a[1]) + $b.*;",
			op:      op(patch.PositionReplace, "f(a[1]) + $b.*", "g()"),
			want:    "x = g();",
		},
		{
			name:    "single_substitution",
			content: "x x x",
			op:      op(patch.PositionReplace, "x", "y"),
			want:    "y x x",
		},
		{
			name:    "loose_whitespace",
			content: phpFile,
			op: patch.EditOperation{
				Search: "return    true;", Replace: "return 1;", Position: patch.PositionReplace,
				ErrorPolicy: patch.PolicyFatal, LooseWhitespace: true,
			},
			want: "<?php\nfunction a()\n{\n\treturn 1;\n}\n?>\n",
		},
		{
			name:    "regex_with_group_reference",
			content: phpFile,
			op: patch.EditOperation{
				Search: `function (\w+)\(\)`, Replace: "function $1_renamed()", Position: patch.PositionReplace,
				ErrorPolicy: patch.PolicyFatal, IsRegex: true,
			},
			want: "<?php\nfunction a_renamed()\n{\n\treturn true;\n}\n?>\n",
		},
		{
			name:    "regex_after_keeps_user_groups",
			content: phpFile,
			op: patch.EditOperation{
				Search: `(\w+)\(\)`, Replace: "/*$1*/", Position: patch.PositionAfter,
				ErrorPolicy: patch.PolicyFatal, IsRegex: true,
			},
			want: "<?php\nfunction a()/*a*/\n{\n\treturn true;\n}\n?>\n",
		},
	}

	engine := patch.NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := newFiles(map[string]string{"/f.php": tt.content})

			results := engine.Apply(singleFile(tt.op), files, patch.Options{})

			assert.Equal(t, []types.ResultKind{types.ResultOpened, types.ResultReplaced, types.ResultSaved}, results.Kinds())
			assert.Equal(t, tt.want, files.files["/f.php"])
			assert.False(t, results.Failed())
		})
	}
}

func TestApply_ReplacedCarriesHumanText(t *testing.T) {
	files := newFiles(map[string]string{"/f.php": phpFile})
	results := patch.NewEngine().Apply(singleFile(op(patch.PositionReplace, "return true;", "return false;")), files, patch.Options{})

	require.Len(t, results, 3)
	r := results[1]
	assert.Equal(t, "/f.php", r.Path)
	assert.Equal(t, "replace", r.Position)
	assert.Equal(t, "return true;", r.Search)
	assert.Equal(t, "return false;", r.Replace)
	assert.NotEmpty(t, r.Pattern)
}

func TestApply_OperationPolicies(t *testing.T) {
	tests := []struct {
		name      string
		op        patch.EditOperation
		reverse   bool
		wantKinds []types.ResultKind
		wantFatal bool
	}{
		{
			name:      "fatal_not_found",
			op:        op(patch.PositionReplace, "missing();", "x"),
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed},
			wantFatal: true,
		},
		{
			name:      "ignore_not_found",
			op:        patch.EditOperation{Search: "missing();", Replace: "x", Position: patch.PositionReplace, ErrorPolicy: patch.PolicyIgnore},
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed, types.ResultSaved},
		},
		{
			name:      "required_absent_but_present",
			op:        patch.EditOperation{Search: "return true;", Position: patch.PositionReplace, ErrorPolicy: patch.PolicyRequiredAbsent},
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed},
			wantFatal: true,
		},
		{
			name:      "required_absent_and_absent",
			op:        patch.EditOperation{Search: "eval(", Position: patch.PositionReplace, ErrorPolicy: patch.PolicyRequiredAbsent},
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultSaved},
		},
		{
			name:      "required_absent_on_reverse_is_skipped",
			op:        patch.EditOperation{Search: "return true;", Position: patch.PositionReplace, ErrorPolicy: patch.PolicyRequiredAbsent},
			reverse:   true,
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultSkipped, types.ResultSaved},
		},
		{
			name: "regex_cannot_be_reversed",
			op: patch.EditOperation{
				Search: `return \w+;`, Replace: "return 0;", Position: patch.PositionReplace,
				ErrorPolicy: patch.PolicyFatal, IsRegex: true,
			},
			reverse:   true,
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed},
			wantFatal: true,
		},
		{
			name:      "deletion_cannot_be_reversed",
			op:        op(patch.PositionReplace, "\treturn true;\n", ""),
			reverse:   true,
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed},
			wantFatal: true,
		},
		{
			name: "invalid_regex",
			op: patch.EditOperation{
				Search: `(unclosed`, Position: patch.PositionReplace, ErrorPolicy: patch.PolicyIgnore, IsRegex: true,
			},
			wantKinds: []types.ResultKind{types.ResultOpened, types.ResultFailed},
			wantFatal: true,
		},
	}

	engine := patch.NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := newFiles(map[string]string{"/f.php": phpFile})

			results := engine.Apply(singleFile(tt.op), files, patch.Options{Reverse: tt.reverse})

			assert.Equal(t, tt.wantKinds, results.Kinds())
			assert.Equal(t, tt.wantFatal, results.Failed())
			// unchanged content is never rewritten
			assert.Empty(t, files.writes)
			assert.Equal(t, phpFile, files.files["/f.php"])
		})
	}
}

func TestApply_FatalFailureKeepsEarlierEditsUnwritten(t *testing.T) {
	files := newFiles(map[string]string{"/f.php": phpFile})
	script := singleFile(
		op(patch.PositionReplace, "return true;", "return false;"),
		op(patch.PositionReplace, "not here", "x"),
	)

	results := patch.NewEngine().Apply(script, files, patch.Options{})

	assert.Equal(t, []types.ResultKind{types.ResultOpened, types.ResultReplaced, types.ResultFailed}, results.Kinds())
	assert.True(t, results.Failed())
	assert.Empty(t, files.writes)
}

func TestApply_MissingFilePolicies(t *testing.T) {
	tests := []struct {
		policy    patch.FilePolicy
		wantKinds []types.ResultKind
		wantFatal bool
		created   bool
	}{
		{patch.FileFatal, []types.ResultKind{types.ResultMissing}, true, false},
		{patch.FileSkip, []types.ResultKind{types.ResultSkipped}, false, false},
		{patch.FileIgnore, []types.ResultKind{types.ResultOpened, types.ResultReplaced, types.ResultSaved}, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			files := newFiles(map[string]string{})
			script := &patch.Script{Files: []patch.FileEdit{{
				Path:        "/new.php",
				ErrorPolicy: tt.policy,
				Operations:  []patch.EditOperation{op(patch.PositionEnd, "", "<?php\n")},
			}}}

			results := patch.NewEngine().Apply(script, files, patch.Options{})

			assert.Equal(t, tt.wantKinds, results.Kinds())
			assert.Equal(t, tt.wantFatal, results.Failed())
			assert.Equal(t, tt.created, files.Exists("/new.php"))
			if tt.created {
				assert.Equal(t, "<?php\n", files.files["/new.php"])
			}
		})
	}
}

func TestApply_ReverseRestoresOriginal(t *testing.T) {
	scripts := map[string][]patch.EditOperation{
		"mixed": {
			op(patch.PositionReplace, "return true;", "return false;"),
			op(patch.PositionBefore, "function a()", "// doc\n"),
			op(patch.PositionAfter, "{", "\n\tglobal $x;"),
			op(patch.PositionEnd, "", "function b() {}\n"),
		},
		"marker": {
			op(patch.PositionReplace, "// MARKER", "// MARKER\necho 1;"),
		},
		"overlapping": {
			op(patch.PositionAfter, "{", "\n\t$y = 1;"),
			op(patch.PositionAfter, "$y = 1;", "\n\t$z = 2;"),
		},
		"loose": {
			{Search: "return true;", Replace: "return  true; // checked", Position: patch.PositionReplace, ErrorPolicy: patch.PolicyFatal, LooseWhitespace: true},
		},
	}

	engine := patch.NewEngine()
	for name, ops := range scripts {
		t.Run(name, func(t *testing.T) {
			original := phpFile
			if name == "marker" {
				original = "<?php\n// MARKER\n"
			}
			files := newFiles(map[string]string{"/f.php": original})
			script := singleFile(ops...)

			installed := engine.Apply(script, files, patch.Options{})
			require.False(t, installed.Failed(), "%+v", installed)
			require.NotEqual(t, original, files.files["/f.php"])

			reverted := engine.Apply(script, files, patch.Options{Reverse: true})
			require.False(t, reverted.Failed(), "%+v", reverted)
			assert.Equal(t, original, files.files["/f.php"])
			assert.Equal(t, installed.Count(types.ResultReplaced), reverted.Count(types.ResultReplaced))
		})
	}
}

// A loose match forgets the file's own spacing, so reversing restores the
// search text as the script spells it.
func TestApply_LooseReverseWritesScriptSpelling(t *testing.T) {
	files := newFiles(map[string]string{"/f.php": "<?php\nreturn\t\ttrue;\n"})
	script := singleFile(patch.EditOperation{
		Search: "return true;", Replace: "return false;", Position: patch.PositionReplace,
		ErrorPolicy: patch.PolicyFatal, LooseWhitespace: true,
	})
	engine := patch.NewEngine()

	installed := engine.Apply(script, files, patch.Options{})
	require.False(t, installed.Failed(), "%+v", installed)
	assert.Equal(t, "<?php\nreturn false;\n", files.files["/f.php"])

	reverted := engine.Apply(script, files, patch.Options{Reverse: true})
	require.False(t, reverted.Failed(), "%+v", reverted)
	assert.Equal(t, "<?php\nreturn true;\n", files.files["/f.php"])
}

func TestApply_ReverseSwapsReportedText(t *testing.T) {
	files := newFiles(map[string]string{"/f.php": "<?php\n// MARKER\necho 1;\n"})
	results := patch.NewEngine().Apply(singleFile(op(patch.PositionReplace, "// MARKER", "// MARKER\necho 1;")), files, patch.Options{Reverse: true})

	require.Len(t, results, 3)
	assert.Equal(t, "// MARKER\necho 1;", results[1].Search)
	assert.Equal(t, "// MARKER", results[1].Replace)
	assert.Equal(t, "<?php\n// MARKER\n", files.files["/f.php"])
}

func TestApply_DryRunMatchesRealRun(t *testing.T) {
	script := singleFile(
		op(patch.PositionReplace, "return true;", "return false;"),
		patch.EditOperation{Search: "nope", Replace: "x", Position: patch.PositionAfter, ErrorPolicy: patch.PolicyIgnore},
		op(patch.PositionEnd, "", "// end\n"),
	)
	script.Files = append(script.Files, patch.FileEdit{Path: "/gone.php", ErrorPolicy: patch.FileSkip})

	real := newFiles(map[string]string{"/f.php": phpFile})
	dry := newFiles(map[string]string{"/f.php": phpFile})
	dry.readonly["/f.php"] = true
	real.readonly["/f.php"] = true

	engine := patch.NewEngine()
	realResults := engine.Apply(script, real, patch.Options{})
	dryResults := engine.Apply(script, dry, patch.Options{DryRun: true})

	assert.Equal(t, realResults.Kinds(), dryResults.Kinds())
	assert.Equal(t, realResults, dryResults)
	assert.Empty(t, dry.writes)
	assert.Equal(t, phpFile, dry.files["/f.php"])
	assert.NotEqual(t, phpFile, real.files["/f.php"])
}

func TestApply_DryRunSeesEarlierEditsOfSamePath(t *testing.T) {
	script := &patch.Script{ID: "t", Files: []patch.FileEdit{
		{Path: "/f.php", ErrorPolicy: patch.FileFatal, Operations: []patch.EditOperation{
			op(patch.PositionAfter, "return true;", "\n\t// added"),
		}},
		{Path: "/f.php", ErrorPolicy: patch.FileFatal, Operations: []patch.EditOperation{
			op(patch.PositionReplace, "// added", "// changed"),
		}},
	}}

	real := newFiles(map[string]string{"/f.php": phpFile})
	dry := newFiles(map[string]string{"/f.php": phpFile})

	engine := patch.NewEngine()
	realResults := engine.Apply(script, real, patch.Options{})
	dryResults := engine.Apply(script, dry, patch.Options{DryRun: true})

	want := []types.ResultKind{
		types.ResultOpened, types.ResultReplaced, types.ResultSaved,
		types.ResultOpened, types.ResultReplaced, types.ResultSaved,
	}
	assert.Equal(t, want, realResults.Kinds())
	assert.Equal(t, realResults, dryResults)
	assert.Contains(t, real.files["/f.php"], "// changed")
	assert.Empty(t, dry.writes)
	assert.Equal(t, phpFile, dry.files["/f.php"])
}

func TestApply_ChmodNeeded(t *testing.T) {
	files := newFiles(map[string]string{"/f.php": phpFile})
	files.readonly["/f.php"] = true

	results := patch.NewEngine().Apply(singleFile(op(patch.PositionReplace, "true", "false")), files, patch.Options{})

	assert.Equal(t, []types.ResultKind{
		types.ResultOpened, types.ResultReplaced, types.ResultChmodNeeded, types.ResultSaved,
	}, results.Kinds())
	assert.False(t, results.Failed())
}

func TestApply_ThemeCopies(t *testing.T) {
	files := newFiles(map[string]string{
		"/forum/Themes/default/index.template.php": "<html><body>",
		"/forum/Themes/blue/index.template.php":    "<html><body>",
		"/forum/Themes/plain/index.template.php":   "<html><body id=\"x\">",
	})
	script := &patch.Script{Files: []patch.FileEdit{{
		Path:        "$themedir/index.template.php",
		ErrorPolicy: patch.FileFatal,
		CustomTheme: true,
		Operations:  []patch.EditOperation{op(patch.PositionAfter, "<body>", "<div>")},
	}}}

	results := patch.NewEngine().Apply(script, files, patch.Options{
		Resolve: func(p string) string {
			return strings.Replace(p, "$themedir", "/forum/Themes/default", 1)
		},
		DefaultThemeDir: "/forum/Themes/default",
		Themes: map[string]string{
			"1": "/forum/Themes/default",
			"2": "/forum/Themes/blue",
			"3": "/forum/Themes/plain",
			"4": "/forum/Themes/empty",
		},
	})

	assert.Equal(t, []types.ResultKind{
		types.ResultOpened, types.ResultReplaced, types.ResultSaved,
		types.ResultOpened, types.ResultReplaced, types.ResultSaved,
		types.ResultOpened, types.ResultFailed,
	}, results.Kinds())

	var themes []string
	for _, r := range results {
		if r.Kind == types.ResultOpened {
			themes = append(themes, r.Theme)
		}
	}
	assert.Equal(t, []string{"", "2", "3"}, themes)

	// a failing theme copy never fails the install
	assert.False(t, results.Failed())
	assert.Equal(t, "<html><body><div>", files.files["/forum/Themes/default/index.template.php"])
	assert.Equal(t, "<html><body><div>", files.files["/forum/Themes/blue/index.template.php"])
	assert.Equal(t, "<html><body id=\"x\">", files.files["/forum/Themes/plain/index.template.php"])

	written := append([]string(nil), files.writes...)
	sort.Strings(written)
	assert.Equal(t, []string{"/forum/Themes/blue/index.template.php", "/forum/Themes/default/index.template.php"}, written)
}

func TestApply_BoardModAndXMLAgree(t *testing.T) {
	board, err := patch.ParseBoardMod([]byte("<edit file>\n/f.php\n</edit file>\n<search for>\nreturn true;\n</search for>\n<add after>\n // ok\n</add after>\n"))
	require.NoError(t, err)
	xml, err := patch.ParseXML([]byte(`<modification><file name="/f.php"><operation><search position="after"><![CDATA[return true;]]></search><add><![CDATA[ // ok]]></add></operation></file></modification>`))
	require.NoError(t, err)

	engine := patch.NewEngine()
	a := newFiles(map[string]string{"/f.php": phpFile})
	b := newFiles(map[string]string{"/f.php": phpFile})

	ra := engine.Apply(board, a, patch.Options{})
	rb := engine.Apply(xml, b, patch.Options{})

	assert.Equal(t, ra, rb)
	assert.Equal(t, a.files, b.files)
	assert.Contains(t, a.files["/f.php"], "return true; // ok")
}
