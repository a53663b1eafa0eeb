// Package validation provides the argument checks shared by the outbound
// configuration surfaces.
//
// Each check returns an errors.ValidationError carrying the module, the
// field, the offending value, and a hint describing the accepted range,
// so rejected options read the same everywhere.
package validation
