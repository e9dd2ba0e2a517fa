// Package ir provides the typed values, field types and client-facing errors
// shared by every logfire package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Field values are a closed union (Value); classification into field
//     types is a pure function over that union (PossibleTypes)
//   - A positive integer literal may stand for either a number or a timestamp
//   - Arguments handed to Redis scripts are serialized with MarshalCanonical,
//     so identical requests produce byte-identical script arguments
package ir
