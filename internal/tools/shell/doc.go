// Package shell provides the shell_exec tool.
//
// Commands run under `sh -c` with a hard timeout. Output is captured
// whether or not the command succeeds, and a timeout returns what was
// produced so far instead of failing the turn.
package shell
