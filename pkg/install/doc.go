// Package install runs package manifests against a forum tree.
//
// An install loads the package bundle, picks the install or upgrade block
// matching the forum version and executes its actions in order. Every
// change goes through a stage.Stage, so nothing reaches the forum until
// all actions have succeeded and every touched path is writable. The
// actions that can be undone record rollback steps in the state store;
// uninstall replays them, or runs the package's own uninstall block when
// the package is still available.
package install
