package mcpserver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

var numericFields = []string{
	"amount", "oldbalanceOrg", "newbalanceOrig", "oldbalanceDest", "newbalanceDest",
}

// HandleScoreTransaction scores one transaction through the gateway.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tx, err := transactionFromArgs(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := h.client.Predict(ctx, tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score transaction: %v", err)), nil
	}

	return mcp.NewToolResultText(formatVerdict(tx, v)), nil
}

// HandleGetModelInfo describes the served model.
func (h *Handlers) HandleGetModelInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := h.client.ModelInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get model info: %v", err)), nil
	}
	return mcp.NewToolResultText(formatModelInfo(info)), nil
}

// --- Argument parsing ---

func transactionFromArgs(args map[string]any) (Transaction, error) {
	var tx Transaction

	typ, _ := args["type"].(string)
	if typ == "" {
		return tx, fmt.Errorf("type is required")
	}
	tx.Type = typ

	var missing []string
	values := make(map[string]float64, len(numericFields))
	for _, f := range numericFields {
		v, ok := getFloat(args, f)
		if !ok {
			missing = append(missing, f)
			continue
		}
		values[f] = v
	}
	if len(missing) > 0 {
		return tx, fmt.Errorf("missing or non-numeric field(s): %s", strings.Join(missing, ", "))
	}
	tx.Amount = values["amount"]
	tx.OldBalanceOrg = values["oldbalanceOrg"]
	tx.NewBalanceOrig = values["newbalanceOrig"]
	tx.OldBalanceDest = values["oldbalanceDest"]
	tx.NewBalanceDest = values["newbalanceDest"]

	if _, present := args["isFlaggedFraud"]; present {
		f, ok := getFloat(args, "isFlaggedFraud")
		if !ok || f != math.Trunc(f) {
			return tx, fmt.Errorf("isFlaggedFraud must be an integer")
		}
		flag := int(f)
		tx.IsFlaggedFraud = &flag
	}

	return tx, nil
}

// getFloat reads a JSON number. Clients send numbers as float64.
func getFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// --- Formatting ---

func formatVerdict(tx Transaction, v *Verdict) string {
	var sb strings.Builder
	verdict := "LEGITIMATE"
	if v.IsFraud {
		verdict = "FRAUD"
	}
	fmt.Fprintf(&sb, "Verdict: %s\n", verdict)
	fmt.Fprintf(&sb, "Fraud probability: %.4f\n", v.FraudProbability)
	fmt.Fprintf(&sb, "Confidence: %s\n", v.Confidence)
	fmt.Fprintf(&sb, "\nTransaction: %s of %.2f\n", tx.Type, tx.Amount)
	fmt.Fprintf(&sb, "  Originator: %.2f -> %.2f\n", tx.OldBalanceOrg, tx.NewBalanceOrig)
	fmt.Fprintf(&sb, "  Recipient:  %.2f -> %.2f\n", tx.OldBalanceDest, tx.NewBalanceDest)
	return sb.String()
}

func formatModelInfo(info *ModelInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\n", info.ModelType)
	fmt.Fprintf(&sb, "Input features: %d\n", info.NFeatures)
	if len(info.FeatureNames) > 0 {
		sb.WriteString("\nFeatures in order:\n")
		for i, n := range info.FeatureNames {
			fmt.Fprintf(&sb, "  %2d. %s\n", i+1, n)
		}
	}
	if info.Note != "" {
		fmt.Fprintf(&sb, "\nNote: %s\n", info.Note)
	}
	return sb.String()
}
