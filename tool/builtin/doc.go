// Package builtin registers the stock tool factories: hand-off control
// flow, chat summarization, sandboxed code execution, math, web search,
// image generation, and scheduling.
package builtin
