// Package model defines the provider-agnostic generation interface and a
// scriptable mock. Vendor adapters live in the anthropic and openai
// subpackages.
package model
