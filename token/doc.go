// Package token mints and validates the access/refresh JWT pair with strict
// type separation and a closed validation error set.
package token
