package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/fraudgate/internal/features"
)

// Tool definitions for the fraudgate MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Score a mobile-money transaction for fraud. "+
			"Returns whether it looks fraudulent, the fraud probability, and a confidence tier (high/medium/low). "+
			"CASH_IN transactions cannot be scored."),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Transaction type"),
		mcp.Enum(features.ValidTypeNames()...)),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount")),
	mcp.WithNumber("oldbalanceOrg",
		mcp.Required(),
		mcp.Description("Originator balance before the transaction")),
	mcp.WithNumber("newbalanceOrig",
		mcp.Required(),
		mcp.Description("Originator balance after the transaction")),
	mcp.WithNumber("oldbalanceDest",
		mcp.Required(),
		mcp.Description("Recipient balance before the transaction")),
	mcp.WithNumber("newbalanceDest",
		mcp.Required(),
		mcp.Description("Recipient balance after the transaction")),
	mcp.WithNumber("isFlaggedFraud",
		mcp.Description("1 if an upstream rule already flagged the transaction, otherwise 0 (default)")),
)

var ToolGetModelInfo = mcp.NewTool("get_model_info",
	mcp.WithDescription(
		"Describe the fraud model the gateway is serving: model type, number of input features, and their names in order."),
)
