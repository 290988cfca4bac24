// Package model describes the base objects manipulated by flathub-filter.
//
// The object model is composed of:
//
//  Components:
//    One entry of the allow-list: an application or a runtime, identified by its
//    flatpak id, with statistical fields refreshed from upstream and editorial fields
//    (Include, Comments) decided by humans.
//
//  Tracked artifacts:
//    The fixed set of data files (apps.txt, other.txt, filter.txt) which are regenerated
//    from upstream and receive special three-way handling when rebasing.
//
//  Commits:
//    Immutable descriptors of the commits replayed by a rebase, with authorship and
//    timestamps as recorded in the original commit object.
//
//  Resume tokens:
//    The persisted state of an interrupted rebase or merge, which allows a later
//    invocation to continue after a conflict has been resolved manually.
package model
