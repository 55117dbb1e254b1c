// Package model groups the text-generation adapters that satisfy
// core.Generator. Workers call the generator while doing their domain work;
// the orchestration core never shapes these calls. Concrete adapters live in
// the openai and anthropic subpackages.
package model
