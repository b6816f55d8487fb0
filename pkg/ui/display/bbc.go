package display

import (
	"regexp"
	"strings"
)

var (
	bbcURL   = regexp.MustCompile(`(?i)\[url=([^\]]+)\](.*?)\[/url\]`)
	bbcBare  = regexp.MustCompile(`(?i)\[url\](.*?)\[/url\]`)
	bbcColor = regexp.MustCompile(`(?i)\[/?(color|size|font)(=[^\]]*)?\]`)
)

var bbcTags = strings.NewReplacer(
	"[b]", "**", "[/b]", "**", "[B]", "**", "[/B]", "**",
	"[i]", "_", "[/i]", "_", "[I]", "_", "[/I]", "_",
	"[u]", "", "[/u]", "", "[U]", "", "[/U]", "",
	"[code]", "\n```\n", "[/code]", "\n```\n",
	"[list]", "\n", "[/list]", "\n", "[*]", "\n- ",
	"[hr]", "\n---\n",
)

// BBCToMarkdown converts the common forum BBCode tags of a package readme
// to markdown. Unknown tags are left alone.
func BBCToMarkdown(s string) string {
	s = bbcURL.ReplaceAllString(s, "[$2]($1)")
	s = bbcBare.ReplaceAllString(s, "<$1>")
	s = bbcColor.ReplaceAllString(s, "")
	return bbcTags.Replace(s)
}
