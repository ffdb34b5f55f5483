// Package config provides configuration structures for the phase graph.
//
// Configuration only exists during initialization. It does not persist into
// runtime components; state.NewGraph turns a GraphConfig into an immutable
// graph and validation happens there.
//
// # Configuration Merging
//
// All configuration types support a Merge pattern. This enables layered
// configuration where loaded configs merge over defaults:
//
//	cfg := config.DefaultGraphConfig("travel-lifecycle")
//	var loaded config.GraphConfig
//	json.Unmarshal(data, &loaded)
//	cfg.Merge(&loaded)
//
// Merge semantics by field type:
//
//   - Strings: Merge if source is non-empty
//   - Slices: Replace if source is non-empty
package config
