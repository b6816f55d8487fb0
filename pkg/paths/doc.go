// Package paths provides centralized path handling for modman.
//
// It covers two things:
//
//   - the layout of the forum being modified: the root directory and the
//     well known directories packages refer to through placeholders such
//     as $sourcedir or $themedir;
//   - modman's own directories (install state, download cache), which
//     follow the XDG Base Directory layout.
//
// # Environment Variables
//
//   - MODMAN_FORUM_ROOT: forum root used when none is given
//   - MODMAN_STATE_DIR: override the state directory (default: $XDG_STATE_HOME/modman)
//   - MODMAN_CACHE_DIR: override the cache directory (default: $XDG_CACHE_HOME/modman)
//
// # Placeholders
//
// Manifests and modification scripts name files relative to placeholders:
//
//	$boarddir     forum root
//	$sourcedir    Sources
//	$themes_dir   Themes
//	$themedir     Themes/default
//	$languagedir  Themes/default/languages
//	$imagesdir    Themes/default/images
//	$avatardir    avatars
//	$smileysdir   Smileys
//	$packagesdir  Packages
//
// Every directory can be overridden from configuration.
package paths
