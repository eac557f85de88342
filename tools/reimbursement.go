// Business-trip reimbursement calculator.
//
// Information Hiding:
// - Decimal arithmetic so currency amounts never pass through float64
// - Daily allowance rate fixed at construction

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ReimbursementToolName is the name the model uses to request the tool.
const ReimbursementToolName = "calculate_reimbursement"

// DefaultDailyRate is the per-day allowance in USD.
const DefaultDailyRate = 50

const reimbursementCurrency = "USD"

// ReimbursementTool computes total reimbursement for a business trip:
// expenses plus a flat allowance per day.
type ReimbursementTool struct {
	dailyRate decimal.Decimal
}

// NewReimbursementTool creates the tool with the given daily allowance.
func NewReimbursementTool(dailyRate int64) *ReimbursementTool {
	return &ReimbursementTool{dailyRate: decimal.NewFromInt(dailyRate)}
}

// Metadata returns tool metadata.
func (t *ReimbursementTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: ReimbursementToolName,
		Description: fmt.Sprintf(
			"Calculate business trip reimbursement: expense amount plus a daily allowance of %s %s per day.",
			t.dailyRate.String(), reimbursementCurrency),
		Parameters: []ToolParameter{
			{Name: "amount", ParamType: "number", Description: "Total trip expenses in USD", Required: true},
			{Name: "days", ParamType: "integer", Description: "Number of trip days", Required: true},
		},
	}
}

type reimbursementArgs struct {
	amount decimal.Decimal
	days   decimal.Decimal
}

func parseReimbursementArgs(args json.RawMessage) (reimbursementArgs, error) {
	var raw struct {
		Amount json.Number `json:"amount"`
		Days   json.Number `json:"days"`
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return reimbursementArgs{}, fmt.Errorf("decode arguments: %w", err)
	}
	if raw.Amount == "" || raw.Days == "" {
		return reimbursementArgs{}, errors.New("amount and days are required")
	}

	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return reimbursementArgs{}, fmt.Errorf("amount: %w", err)
	}
	days, err := decimal.NewFromString(raw.Days.String())
	if err != nil {
		return reimbursementArgs{}, fmt.Errorf("days: %w", err)
	}
	return reimbursementArgs{amount: amount, days: days}, nil
}

// Validate rejects negative values and fractional days.
func (t *ReimbursementTool) Validate(args json.RawMessage) error {
	a, err := parseReimbursementArgs(args)
	if err != nil {
		return err
	}
	if a.amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	if a.days.IsNegative() {
		return errors.New("days must not be negative")
	}
	if !a.days.IsInteger() {
		return errors.New("days must be a whole number")
	}
	return nil
}

// Reimbursement is the structured breakdown returned to the model.
type Reimbursement struct {
	Amount             json.Number `json:"amount"`
	Days               json.Number `json:"days"`
	DailyRate          json.Number `json:"daily_rate"`
	DailyAllowance     json.Number `json:"daily_allowance"`
	TotalReimbursement json.Number `json:"total_reimbursement"`
	Currency           string      `json:"currency"`
	Summary            string      `json:"summary"`
}

// Calculate returns the breakdown for amount and days.
func (t *ReimbursementTool) Calculate(amount, days decimal.Decimal) Reimbursement {
	allowance := days.Mul(t.dailyRate)
	total := amount.Add(allowance)

	return Reimbursement{
		Amount:             json.Number(amount.String()),
		Days:               json.Number(days.String()),
		DailyRate:          json.Number(t.dailyRate.String()),
		DailyAllowance:     json.Number(allowance.String()),
		TotalReimbursement: json.Number(total.String()),
		Currency:           reimbursementCurrency,
		Summary: fmt.Sprintf("Expenses %s %s + %s days x %s %s allowance = %s %s total reimbursement",
			amount.String(), reimbursementCurrency,
			days.String(), t.dailyRate.String(), reimbursementCurrency,
			total.String(), reimbursementCurrency),
	}
}

// Execute computes the reimbursement.
func (t *ReimbursementTool) Execute(_ context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := parseReimbursementArgs(args)
	if err != nil {
		return FailureResult(err), nil
	}

	r := t.Calculate(a.amount, a.days)
	data, err := json.Marshal(r)
	if err != nil {
		return ToolResult{}, fmt.Errorf("encode reimbursement: %w", err)
	}
	return SuccessResult(r.Summary, data), nil
}

// Verify ReimbursementTool implements Tool
var _ Tool = (*ReimbursementTool)(nil)
