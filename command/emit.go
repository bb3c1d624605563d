package command

import "strings"

// Text serializes an ordered command list to a single script, commands
// separated by a blank line.
func Text(cmds []Command, ctx *ScriptingContext) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		parts = append(parts, c.Script(ctx))
	}
	return strings.Join(parts, "\n\n")
}

// Files lays an ordered command list out as a multi-file tree, keyed by each
// command's ScriptPath. Commands sharing a path keep their order inside one
// file.
func Files(cmds []Command, ctx *ScriptingContext) map[string]string {
	grouped := make(map[string][]Command)
	for _, c := range cmds {
		grouped[c.ScriptPath()] = append(grouped[c.ScriptPath()], c)
	}
	out := make(map[string]string, len(grouped))
	for p, group := range grouped {
		out[p] = Text(group, ctx)
	}
	return out
}
