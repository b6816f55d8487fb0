// Package patch parses modification scripts and applies them to forum
// source files.
//
// Two surface syntaxes are supported and parse into the same Script model:
// the XML <modification> form and the older boardmod form made of
// <edit file>, <search for> and <add after> style blocks.
//
// Each FileEdit is applied in order against the progressively edited
// content of its file; an operation performs exactly one substitution.
// Literal searches are escaped before matching and may relax blank runs
// (whitespace="loose"). Reverse runs undo an installed script: Replace
// operations swap their texts, Before and After insertions are deleted and
// End insertions are removed from the end of the file. Regular expression
// operations have no inverse and fail on reverse.
//
// The engine never touches storage directly. It reads and writes through
// FileAccess, which the install stage implements on top of its write
// cache, and it returns an ordered types.Results log in both real and
// dry-run mode.
package patch
