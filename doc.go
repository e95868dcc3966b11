// Package loom is a minimalist framework for building LLM and data workflows
// as directed graphs of composable nodes. Each node runs a three-phase
// lifecycle — Prep, Exec, Post — against a shared state container, and a
// flow walks the graph from node to node following the action label each
// node's Post phase returns.
//
// The core kernel (this package) never persists anything, never validates
// shared-state shapes, and never schedules across processes: those concerns
// live in the packages built on top of it (yaml, builtin, plugin, compose,
// cmd/loom).
package loom
