package graph

// Fixed tool-name sets used to decide whether an extracted entity was read,
// written, or sent over the network. Names cover the common agent framework
// spellings plus the underlying shell commands.

var readTools = map[string]bool{
	"Read": true, "read_file": true, "cat": true, "open": true,
	"view": true, "head": true, "tail": true, "NotebookRead": true,
	"Glob": true, "Grep": true,
}

var writeTools = map[string]bool{
	"Write": true, "write_file": true, "Edit": true, "MultiEdit": true,
	"save": true, "append_file": true, "NotebookEdit": true, "tee": true,
}

var shellTools = map[string]bool{
	"Bash": true, "bash": true, "shell": true, "exec": true, "run_command": true,
	"execute_command": true, "sh": true, "terminal": true,
}

var networkTools = map[string]bool{
	"curl": true, "wget": true, "http-fetch": true, "WebFetch": true,
	"fetch": true, "http_request": true, "browser": true, "WebSearch": true,
	"http_get": true, "http_post": true,
}

// IsReadTool reports whether the tool name is a known file-read tool.
func IsReadTool(name string) bool { return readTools[name] }

// IsWriteTool reports whether the tool name is a known file-write tool.
func IsWriteTool(name string) bool { return writeTools[name] }

// IsShellTool reports whether the tool name is a known shell-execution tool.
func IsShellTool(name string) bool { return shellTools[name] }

// IsNetworkTool reports whether the tool name is a known external-network
// tool.
func IsNetworkTool(name string) bool { return networkTools[name] }
