package mcp

import "github.com/mark3labs/mcp-go/mcp"

var fetchToolDef = mcp.NewTool("turn_fetch",
	mcp.WithDescription("Fetch one recorded question/response turn by id, including the ambient context it was asked with."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Turn ULID")),
	mcp.WithBoolean("include_deleted", mcp.Description("Also return a soft-deleted turn")),
)

var listToolDef = mcp.NewTool("turn_list",
	mcp.WithDescription("List recorded turns newest first. Returns summaries with a question preview; use turn_fetch for the full response."),
	mcp.WithString("session_id", mcp.Description("Only turns from this overlay session")),
	mcp.WithString("mode", mcp.Description("Only turns asked in this mode"), mcp.Enum("clipboard", "screenshot")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted turns")),
)

var latestToolDef = mcp.NewTool("turn_latest",
	mcp.WithDescription("Return the most recent turn."),
	mcp.WithString("session_id", mcp.Description("Only turns from this overlay session")),
	mcp.WithString("mode", mcp.Description("Only turns asked in this mode"), mcp.Enum("clipboard", "screenshot")),
	mcp.WithBoolean("include_response", mcp.Description("Include the full question, response and context (default false)")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted turns")),
)

var searchToolDef = mcp.NewTool("turn_search",
	mcp.WithDescription("Find turns whose question, response or context contains the query (case-insensitive). Results carry an HTML-escaped snippet with <b> highlights."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	mcp.WithString("session_id", mcp.Description("Only turns from this overlay session")),
	mcp.WithString("mode", mcp.Description("Only turns asked in this mode"), mcp.Enum("clipboard", "screenshot")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted turns")),
)

var deleteToolDef = mcp.NewTool("turn_delete",
	mcp.WithDescription("Soft-delete a turn. It stays recoverable until purged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Turn ULID")),
)

var exportToolDef = mcp.NewTool("turn_export",
	mcp.WithDescription("Export turns to a JSONL file in the exports directory or an allowed path."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default: exports directory)")),
	mcp.WithString("session_id", mcp.Description("Only turns from this overlay session")),
	mcp.WithString("mode", mcp.Description("Only turns asked in this mode"), mcp.Enum("clipboard", "screenshot")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted turns")),
)

var importToolDef = mcp.NewTool("turn_import",
	mcp.WithDescription("Import turns from a JSONL export file."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path")),
	mcp.WithString("mode", mcp.Description("Collision handling: error (atomic, default), replace, skip"), mcp.Enum("error", "replace", "skip")),
)

var purgeToolDef = mcp.NewTool("turn_purge",
	mcp.WithDescription("Permanently remove soft-deleted turns."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge turns deleted more than this many days ago")),
)

var overlayStateToolDef = mcp.NewTool("overlay_state",
	mcp.WithDescription("Read the running overlay's state: mode, loading, current question and response, ambient context."),
)

var overlayTriggerToolDef = mcp.NewTool("overlay_trigger",
	mcp.WithDescription("Fire an action on the running overlay, as its hotkeys would."),
	mcp.WithString("action", mcp.Required(),
		mcp.Description("clipboard: toggle clipboard mode; screenshot: toggle screenshot mode; copy: copy the response; dismiss: dismiss the context; hide: hide the window"),
		mcp.Enum("clipboard", "screenshot", "copy", "dismiss", "hide"),
	),
)
