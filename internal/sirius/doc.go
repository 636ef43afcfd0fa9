// Package sirius talks to the remote event catalog and enrollment endpoints.
//
// The remote API is form/JSON based and loosely typed (numbers arrive as
// strings sometimes). Everything is decoded into typed descriptors up front;
// a missing or mistyped field is a classified decode error, never a silent
// zero value.
package sirius
