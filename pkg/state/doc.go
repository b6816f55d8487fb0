// Package state records which packages are installed in a forum.
//
// Each installed package gets one TOML file in the state directory holding
// its identity, the themes its edits touched, the hooks and credits it
// registered and the rollback manifest used when the package ships no
// uninstall block of its own. Files are named after the package id so a
// forum can be inspected by hand.
package state
