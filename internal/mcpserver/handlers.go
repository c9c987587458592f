package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
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

// HandleSubmitTransaction submits a transaction for classification.
func (h *Handlers) HandleSubmitTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senderID := req.GetString("sender_id", "")
	if senderID == "" {
		return mcp.NewToolResultError("sender_id is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}

	body := map[string]any{"sender_id": senderID, "amount": amount}
	for _, key := range []string{"beneficiary_id", "sender_name", "currency", "sending_date"} {
		if v := req.GetString(key, ""); v != "" {
			body[key] = v
		}
	}

	raw, err := h.client.SubmitTransaction(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Submission failed: %v", err)), nil
	}

	text, err := formatPrediction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse prediction: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetTransaction looks up one transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	var resp struct {
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Transaction == nil {
		return mcp.NewToolResultError("Unexpected transaction response"), nil
	}
	return mcp.NewToolResultText(formatTransaction(resp.Transaction)), nil
}

// HandleGetSenderHistory lists a sender's transactions.
func (h *Handlers) HandleGetSenderHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senderID := req.GetString("sender_id", "")
	if senderID == "" {
		return mcp.NewToolResultError("sender_id is required"), nil
	}

	raw, err := h.client.GetSenderHistory(ctx, senderID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	var resp struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}
	if len(resp.Transactions) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Sender %s has no transactions.", senderID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sender %s: %d transaction(s)\n\n", senderID, len(resp.Transactions))
	for i, tx := range resp.Transactions {
		fmt.Fprintf(&sb, "%d. %s  %s %s  %s\n", i+1,
			getString(tx, "sending_date"), getString(tx, "amount"), getString(tx, "currency"), getString(tx, "status"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetSenderFeatures shows a sender's cached vector.
func (h *Handlers) HandleGetSenderFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senderID := req.GetString("sender_id", "")
	if senderID == "" {
		return mcp.NewToolResultError("sender_id is required"), nil
	}

	raw, err := h.client.GetSenderFeatures(ctx, senderID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get features: %v", err)), nil
	}

	var resp struct {
		Snapshot struct {
			SenderID  string             `json:"sender_id"`
			Features  map[string]float64 `json:"features"`
			UpdatedAt string             `json:"updated_at"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse features: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Features for sender %s (updated %s):\n", resp.Snapshot.SenderID, resp.Snapshot.UpdatedAt)
	sb.WriteString(formatVector(resp.Snapshot.Features))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListRecentFeatures lists recently changed snapshots.
func (h *Handlers) HandleListRecentFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListRecentFeatures(ctx, req.GetString("since", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list features: %v", err)), nil
	}

	var resp struct {
		Features []struct {
			SenderID  string             `json:"sender_id"`
			Features  map[string]float64 `json:"features"`
			UpdatedAt string             `json:"updated_at"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse features: %v", err)), nil
	}
	if len(resp.Features) == 0 {
		return mcp.NewToolResultText("No feature snapshots changed in that window."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d sender(s) updated:\n\n", len(resp.Features))
	for i, s := range resp.Features {
		fmt.Fprintf(&sb, "%d. %s  total_trx=%g  paid_percentage=%.1f%%  updated %s\n", i+1,
			s.SenderID, s.Features["total_trx"], s.Features["paid_percentage"], s.UpdatedAt)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetStats returns transaction totals.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleModelInfo describes the classifier.
func (h *Handlers) HandleModelInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetModelInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get model info: %v", err)), nil
	}

	var resp struct {
		Model struct {
			Name               string             `json:"name"`
			Version            string             `json:"version"`
			Classes            []string           `json:"classes"`
			Trees              int                `json:"trees"`
			FeatureImportances map[string]float64 `json:"feature_importances"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse model info: %v", err)), nil
	}

	m := resp.Model
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s %s (%d trees)\n", m.Name, m.Version, m.Trees)
	fmt.Fprintf(&sb, "Classes: %s\n", strings.Join(m.Classes, ", "))
	if len(m.FeatureImportances) > 0 {
		sb.WriteString("\nFeature importances:\n")
		for _, kv := range sortedByValue(m.FeatureImportances) {
			fmt.Fprintf(&sb, "  %-22s %.4f\n", kv.key, kv.value)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleRecentAlerts lists recent notifications.
func (h *Handlers) HandleRecentAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListNotifications(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list notifications: %v", err)), nil
	}

	var resp struct {
		Notifications []map[string]any `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse notifications: %v", err)), nil
	}
	if len(resp.Notifications) == 0 {
		return mcp.NewToolResultText("No notifications yet."), nil
	}

	var sb strings.Builder
	for i, n := range resp.Notifications {
		marker := ""
		if getString(n, "high_alert_date") != "" {
			marker = " [HIGH ALERT]"
		}
		fmt.Fprintf(&sb, "%d. %s%s\n", i+1, getString(n, "message"), marker)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleFlaggedTransactions lists the review queue.
func (h *Handlers) HandleFlaggedTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListFlagged(ctx, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list flagged transactions: %v", err)), nil
	}

	var resp struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse flagged transactions: %v", err)), nil
	}
	if len(resp.Transactions) == 0 {
		return mcp.NewToolResultText("No transactions await review."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d transaction(s) awaiting review\n\n", len(resp.Transactions))
	for i, tx := range resp.Transactions {
		fmt.Fprintf(&sb, "%d. %s  sender %s  %s %s", i+1,
			getString(tx, "id"), getString(tx, "sender_id"), getString(tx, "amount"), getString(tx, "currency"))
		if v, ok := getFloat(tx, "confidence"); ok {
			fmt.Fprintf(&sb, "  (%.1f%%)", v*100)
		}
		if rs := getString(tx, "review_status"); rs != "" {
			fmt.Fprintf(&sb, "  [%s]", rs)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleReviewTransaction records a verdict.
func (h *Handlers) HandleReviewTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.ReviewTransaction(ctx, id, req.GetString("review_status", ""), req.GetString("reviewed_by", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Review failed: %v", err)), nil
	}

	var resp struct {
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Transaction == nil {
		return mcp.NewToolResultError("Unexpected review response"), nil
	}
	return mcp.NewToolResultText(formatTransaction(resp.Transaction)), nil
}

// --- Formatting helpers ---

func formatPrediction(raw json.RawMessage) (string, error) {
	var resp struct {
		TransactionID  string             `json:"transaction_id"`
		PredictedLabel string             `json:"predicted_label"`
		Confidence     float64            `json:"confidence"`
		ColdStart      bool               `json:"cold_start"`
		FeaturesUsed   map[string]float64 `json:"features_used"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("no transaction_id in response")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s: %s (confidence %.1f%%)\n", resp.TransactionID, resp.PredictedLabel, resp.Confidence*100)
	if resp.ColdStart {
		sb.WriteString("First transaction of this sender; default features were used.\n")
	}
	if len(resp.FeaturesUsed) > 0 {
		sb.WriteString("\nFeatures used:\n")
		sb.WriteString(formatVector(resp.FeaturesUsed))
	}
	return sb.String(), nil
}

func formatTransaction(tx map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s\n", getString(tx, "id"))
	fmt.Fprintf(&sb, "  Sender: %s", getString(tx, "sender_id"))
	if name := getString(tx, "sender_name"); name != "" {
		fmt.Fprintf(&sb, " (%s)", name)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Amount: %s %s\n", getString(tx, "amount"), getString(tx, "currency"))
	fmt.Fprintf(&sb, "  Sent: %s\n", getString(tx, "sending_date"))
	fmt.Fprintf(&sb, "  Status: %s\n", getString(tx, "status"))
	if v, ok := getFloat(tx, "confidence"); ok {
		fmt.Fprintf(&sb, "  Confidence: %.1f%%\n", v*100)
	}
	if rs := getString(tx, "review_status"); rs != "" {
		fmt.Fprintf(&sb, "  Review: %s", rs)
		if by := getString(tx, "reviewed_by"); by != "" {
			fmt.Fprintf(&sb, " by %s", by)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatVector(v map[string]float64) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-22s %g\n", k, v[k])
	}
	return sb.String()
}

type keyValue struct {
	key   string
	value float64
}

func sortedByValue(m map[string]float64) []keyValue {
	out := make([]keyValue, 0, len(m))
	for k, v := range m {
		out = append(out, keyValue{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].key < out[j].key
	})
	return out
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
