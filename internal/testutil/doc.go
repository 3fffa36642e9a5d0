// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing fragment scripts, conversations,
// stub tools and recording sinks. They are not intended for production usage.
package testutil
