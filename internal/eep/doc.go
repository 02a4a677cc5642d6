// Package eep manages EnOcean Equipment Profiles (EEPs).
//
// An EEP describes how a telegram payload maps to typed engineering
// values: which bit ranges hold which fields, how raw values scale to
// units, and which raw values map to enum labels.
//
// The package provides three layers:
//
//   - Store: the profile dictionary, loaded from EEP.xml at startup and
//     extendable at runtime with fully custom profiles via Define.
//   - Engine: versioned field-level overrides on top of base profiles.
//     Proposals rotate (newest three retained) while version numbers keep
//     climbing, and Effective merges the newest generation over the base.
//   - OverrideRepository: SQLite persistence so overrides survive restart.
//
// Profiles are identified by the RORG-FUNC-TYPE triple, rendered as
// upper-hex dash-separated strings such as "A5-02-05".
//
// Thread Safety:
//   - Store and Engine are safe for concurrent use.
//   - Proposals for different profiles do not serialise against each other.
package eep
