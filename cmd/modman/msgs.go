package modman

// Command descriptions
const (
	MsgRootShort = "Install forum modification packages"
	MsgRootLong  = `modman installs, upgrades and removes forum modification packages.

A package is a ZIP or TAR.GZ archive, or a directory, holding a
package-info.xml manifest. Manifest actions edit forum sources through
modification scripts and copy, move or remove files. All changes are staged
and only written once every action has succeeded and every touched path is
writable.`

	MsgListShort      = "List the members of a package archive"
	MsgExtractShort   = "Extract a package archive"
	MsgInfoShort      = "Show the manifest of a package"
	MsgInstallShort   = "Install or upgrade a package"
	MsgUninstallShort = "Uninstall a package"
	MsgInstalledShort = "List installed packages"
	MsgMatchShort     = "Check a version against a version range"
	MsgConvertShort   = "Convert a boardmod script to XML"
	MsgFTPShort       = "Connect to the FTP fallback and locate the forum"
	MsgVersionShort   = "Print version information"

	MsgInstallLong = `Install runs the install block of a package matching the forum version,
or its upgrade block when an older version is installed.

The package may be a local file or directory, an http(s) URL or an
s3://bucket/key reference. Remote packages are cached.`

	MsgInstallExample = `  modman install ./mymod_1-0.zip
  modman install --dry-run https://example.com/mymod.tar.gz
  modman install --forum-version 2.0.19 s3://mods/mymod.zip`

	MsgUninstallLong = `Uninstall runs the uninstall block of the package the mod was installed
from. When that package is gone or changed, the rollback steps recorded at
install time are replayed in reverse.`
)

// Flag descriptions
const (
	MsgFlagVerbose      = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun       = "Run every action but write nothing"
	MsgFlagConfig       = "Configuration file"
	MsgFlagRoot         = "Forum root directory"
	MsgFlagOutput       = "Output format: auto, term, text, json or yaml"
	MsgFlagForumVersion = "Forum version to match manifests against"
	MsgFlagFTP          = "Use the FTP fallback for paths that cannot be made writable"
	MsgFlagBackup       = "Keep a backup of every replaced file"
	MsgFlagRefresh      = "Download remote packages even when cached"
	MsgFlagFile         = "Extract only the member matching this name"
	MsgFlagOverwrite    = "Replace existing files"
)

// Messages
const (
	MsgVersionFormat   = "modman version %s\n  commit: %s\n  built:  %s\n"
	MsgMatchYes        = "%s matches %s"
	MsgMatchNo         = "%s does not match %s"
	MsgFTPLocated      = "Forum found at %s"
	MsgFTPGuessed      = "Forum not confirmed, best guess is %s"
	MsgEmulateHint     = "the package supports forum version %s; retry with --forum-version %s"
	MsgExtractedFormat = "Extracted %d entries to %s"
)
