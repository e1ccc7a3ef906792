// Package mcp serves greds over the Model Context Protocol.
//
// An answer generator calls the search tool to retrieve grounding chunks,
// verify to score each drafted claim against the chunks it cites, and the
// session tools to carry condensed state across turns and checkpoints.
// Resources expose ingested works, chunk text, checkpoint ancestry and the
// audit trail under the greds:// scheme.
package mcp
