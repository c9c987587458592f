package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Descriptions are what the LLM reads to pick a tool.

var ToolSubmitTransaction = mcp.NewTool("submit_transaction",
	mcp.WithDescription(
		"Submit a new money transfer for fraud screening. The transaction is stored, "+
			"the sender's behavioural features are rebuilt from their full history, and the "+
			"classifier returns Genuine or Suspicious with a confidence score."),
	mcp.WithString("sender_id", mcp.Required(), mcp.Description("Sender (customer) identifier")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Transfer amount as a decimal string, e.g. '250.00'")),
	mcp.WithString("beneficiary_id", mcp.Description("Beneficiary identifier")),
	mcp.WithString("sender_name", mcp.Description("Sender display name")),
	mcp.WithString("currency", mcp.Description("ISO currency code, e.g. 'USD'")),
	mcp.WithString("sending_date", mcp.Description("When the transfer was sent (RFC3339 or 'YYYY-MM-DD HH:MM:SS'); defaults to now")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription("Look up a stored transaction by id, including its predicted status and confidence."),
	mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Transaction id returned by submit_transaction")),
)

var ToolGetSenderHistory = mcp.NewTool("get_sender_history",
	mcp.WithDescription("List every transaction of a sender in chronological order."),
	mcp.WithString("sender_id", mcp.Required(), mcp.Description("Sender identifier")),
)

var ToolGetSenderFeatures = mcp.NewTool("get_sender_features",
	mcp.WithDescription(
		"Show the cached 18-field behavioural feature vector of a sender, such as total "+
			"transactions, paid-out percentage, and volume and timing statistics. This is "+
			"what the classifier saw on the sender's latest submission."),
	mcp.WithString("sender_id", mcp.Required(), mcp.Description("Sender identifier")),
)

var ToolListRecentFeatures = mcp.NewTool("list_recent_features",
	mcp.WithDescription("List senders whose feature vectors changed recently."),
	mcp.WithString("since",
		mcp.Description("RFC3339 timestamp or lookback like '30m', '24h', '7d' (default: all)")),
)

var ToolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription("Show transaction totals: counts and volumes by predicted label and distinct senders."),
)

var ToolModelInfo = mcp.NewTool("model_info",
	mcp.WithDescription("Describe the loaded classifier: version, classes, and feature importances."),
)

var ToolRecentAlerts = mcp.NewTool("recent_alerts",
	mcp.WithDescription("List the most recent prediction notifications, Suspicious ones flagged with a high-alert date."),
	mcp.WithNumber("limit", mcp.Description("Maximum notifications to return (default 20)")),
)

var ToolFlaggedTransactions = mcp.NewTool("flagged_transactions",
	mcp.WithDescription("List transactions classified as Suspicious that still await an analyst review, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum transactions to return (default 50)")),
)

var ToolReviewTransaction = mcp.NewTool("review_transaction",
	mcp.WithDescription(
		"Record an analyst verdict on a classified transaction. 'approved' and 'rejected' "+
			"remove it from the flagged queue; 'escalated' keeps it there. The predicted "+
			"status itself is never changed."),
	mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Transaction id")),
	mcp.WithString("review_status", mcp.Description("approved, rejected or escalated (default approved)")),
	mcp.WithString("reviewed_by", mcp.Description("Name or id of the reviewing analyst")),
)
