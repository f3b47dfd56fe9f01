// Package core provides the filesystem and self tools.
//
// Tools:
//   - file_read: Read file contents, optionally a line range
//   - file_write: Write content to a file, creating parent directories
//   - soul_update: Overwrite the identity's SOUL.md self-description
//   - self_modify: Audited edit of the agent's own files
//
// file_write refuses protected paths so that self_modify remains the only
// route to the agent's own sources, and that route is audited and rate
// limited.
package core
