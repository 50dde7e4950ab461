package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// snippetPath is where run_code_snippet_tool stages source before running.
const snippetPath = "/workspace/snippet.py"

// RegisterCoding registers the sandboxed execution tools.
func RegisterCoding(r *tool.Registry, sandboxes *sandbox.Manager) {
	r.Register("run_command", runCommandFactory(sandboxes))
	r.Register("create_file", createFileFactory(sandboxes))
	r.Register("run_code_snippet_tool", runCodeSnippetFactory(sandboxes))
}

// acquireSandbox fetches the session's sandbox; an unavailable provider is
// reported as a textual error the agent can relay.
func acquireSandbox(ctx context.Context, sandboxes *sandbox.Manager, sctx types.SessionContext) (*sandbox.Handle, string) {
	h, err := sandboxes.GetOrCreate(ctx, sctx.SessionID())
	if err != nil {
		return nil, "Error: could not fetch sandbox environment, try again later"
	}
	return h, ""
}

func runCommandFactory(sandboxes *sandbox.Manager) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name: "run_command",
			Description: "Runs the given command in a Linux environment. The user cannot interact with " +
				"the environment directly, so commands must not read from stdin; write a file and pipe " +
				"it in instead. Pass -y to installation commands for the same reason.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The shell command to run."}
				},
				"required": ["command"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				command, _ := args["command"].(string)

				h, msg := acquireSandbox(ctx, sandboxes, sctx)
				if h == nil {
					return msg, nil
				}

				exitCode, output, err := sandboxes.Exec(ctx, h, command)
				if err != nil {
					return "Error: command execution failed, try again later", nil
				}
				return fmt.Sprintf("(%d, %q)", exitCode, output), nil
			},
		}, nil
	}
}

func createFileFactory(sandboxes *sandbox.Manager) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name: "create_file",
			Description: "Creates a file inside of the secure Linux environment. If you cannot find " +
				"the file after creating it, use the ls command to look for it.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "Absolute path of the file to create."},
					"file_content": {"type": "string", "description": "Contents to write."}
				},
				"required": ["file_path", "file_content"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				path, _ := args["file_path"].(string)
				content, _ := args["file_content"].(string)

				h, msg := acquireSandbox(ctx, sandboxes, sctx)
				if h == nil {
					return msg, nil
				}

				if err := sandboxes.PutFile(ctx, h, path, content); err != nil {
					return "Error: could not write the file, try again later", nil
				}
				return "Added file to sandbox", nil
			},
		}, nil
	}
}

func runCodeSnippetFactory(sandboxes *sandbox.Manager) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name: "run_code_snippet_tool",
			Description: "Runs the given Python code snippet in a Linux environment. Snippets may use " +
				"numpy and matplotlib; any charts saved to /workspace as PNG files are automatically " +
				"shown to the user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"source_code": {"type": "string", "description": "The Python source to run."}
				},
				"required": ["source_code"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				source, _ := args["source_code"].(string)

				h, msg := acquireSandbox(ctx, sandboxes, sctx)
				if h == nil {
					return msg, nil
				}

				if err := sandboxes.PutFile(ctx, h, snippetPath, source); err != nil {
					return "Error: could not stage the snippet, try again later", nil
				}

				exitCode, output, err := sandboxes.Exec(ctx, h, "python3 "+snippetPath)
				if err != nil {
					return "Error: snippet execution failed, try again later", nil
				}

				collectCharts(ctx, sandboxes, h, sctx)

				sctx.Tracer().AppendPending(&types.SideEffect{
					Payload: output,
					Caption: "program output",
				})

				return fmt.Sprintf("(%d, %q)", exitCode, output), nil
			},
		}, nil
	}
}

// collectCharts pulls PNG files the snippet left in the workspace and
// stages them as image traces so the user sees them. Chart collection is
// best effort and never fails the call.
func collectCharts(ctx context.Context, sandboxes *sandbox.Manager, h *sandbox.Handle, sctx types.SessionContext) {
	exitCode, listing, err := sandboxes.Exec(ctx, h, "ls /workspace/*.png 2>/dev/null")
	if err != nil || exitCode != 0 {
		return
	}

	for _, path := range strings.Fields(listing) {
		code, encoded, err := sandboxes.Exec(ctx, h, "base64 -w0 "+path)
		if err != nil || code != 0 {
			continue
		}
		sctx.Tracer().AppendPending(&types.Image{
			Base64EncodedImage: strings.TrimSpace(encoded),
			Caption:            path,
		})
		sandboxes.Exec(ctx, h, "rm -f "+path)
	}
}
