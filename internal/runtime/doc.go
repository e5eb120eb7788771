// Package runtime assembles the relay's components into one explicitly
// wired unit. Nothing here is a global: the CLI builds a ProxyRuntime,
// runs it, and tears it down, so two runtimes in one process (as the
// tests do) never share state.
package runtime
