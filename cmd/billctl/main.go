// Command billctl is the operator CLI for the billing core. Every subcommand
// prints its result as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/app"
	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/service"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app.App, args []string) (any, error)
}

var commands = []command{
	{"record-reading", "record a meter reading", recordReading},
	{"generate", "generate the bill of a reading, or of every pending reading", generate},
	{"pay", "apply a payment to a bill", pay},
	{"refund", "refund a completed payment", refund},
	{"late-fee", "preview (or -apply) the late fee of a bill", lateFee},
	{"sweep", "mark past-due bills overdue", sweep},
	{"show", "show a bill and its payment ledger", show},
}

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd, ok := lookup(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	result, err := cmd.run(ctx, application, flag.Args()[1:])
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn("Failed to close resources", "error", closeErr)
	}
	if err != nil {
		printJSON(os.Stderr, map[string]string{"error": err.Error(), "kind": errorKind(err)})
		os.Exit(1)
	}
	printJSON(os.Stdout, result)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: billctl [-config path] <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-15s %s\n", c.name, c.summary)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printJSON(f *os.File, v any) {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("failed to encode output: %v", err)
	}
}

func errorKind(err error) string {
	switch {
	case domain.IsInputError(err):
		return "input"
	case domain.IsConflict(err):
		return "conflict"
	case domain.IsConsistencyError(err):
		return "consistency"
	default:
		return "internal"
	}
}

// dateFlag parses YYYY-MM-DD values. An unset flag leaves the zero time.
type dateFlag struct{ t time.Time }

func (d *dateFlag) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(time.DateOnly)
}

func (d *dateFlag) Set(v string) error {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	d.t = t
	return nil
}

// decimalFlag parses a decimal string. set records whether it was given.
type decimalFlag struct {
	d   decimal.Decimal
	set bool
}

func (f *decimalFlag) String() string { return f.d.String() }

func (f *decimalFlag) Set(v string) error {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return err
	}
	f.d, f.set = d, true
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func requireID(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

func recordReading(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("record-reading")
	meterID := fs.Int64("meter", 0, "meter id")
	readingType := fs.String("type", string(domain.ReadingTypeActual), "ACTUAL, ESTIMATED or CUSTOMER_SUBMITTED")
	recordedBy := fs.String("by", "", "who took the reading")
	var date dateFlag
	var previous, current decimalFlag
	fs.Var(&date, "date", "reading date (YYYY-MM-DD, default today)")
	fs.Var(&previous, "previous", "previous register value (default: latest reading)")
	fs.Var(&current, "current", "current register value")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := requireID("meter", *meterID); err != nil {
		return nil, err
	}
	if !current.set {
		return nil, errors.New("-current is required")
	}
	if date.t.IsZero() {
		date.t = time.Now()
	}

	req := service.RecordReadingRequest{
		MeterID:      *meterID,
		ReadingDate:  date.t,
		Type:         domain.ReadingType(strings.ToUpper(*readingType)),
		CurrentValue: current.d,
		RecordedBy:   *recordedBy,
	}
	if previous.set {
		req.PreviousValue = &previous.d
	}
	return a.Readings.RecordReading(ctx, req)
}

func generate(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("generate")
	readingID := fs.Int64("reading", 0, "reading id")
	pending := fs.Bool("pending", false, "bill every unbilled reading")
	var due dateFlag
	fs.Var(&due, "due", "due date (YYYY-MM-DD, default reading date plus the configured term)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *pending {
		return a.Billing.GeneratePendingBills(ctx)
	}
	if err := requireID("reading", *readingID); err != nil {
		return nil, err
	}
	req := service.GenerateBillRequest{ReadingID: *readingID}
	if !due.t.IsZero() {
		req.DueDate = &due.t
	}
	return a.Billing.GenerateBill(ctx, req)
}

type paymentResult struct {
	Payment *domain.Payment `json:"payment"`
	Bill    *domain.Bill    `json:"bill"`
}

func pay(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("pay")
	billID := fs.Int64("bill", 0, "bill id")
	method := fs.String("method", string(domain.PaymentMethodCash), "CASH, CARD, BANK_TRANSFER, ONLINE or CHEQUE")
	receivedBy := fs.String("by", "", "who received the payment")
	reference := fs.String("ref", "", "transaction reference")
	var amount decimalFlag
	fs.Var(&amount, "amount", "payment amount")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := requireID("bill", *billID); err != nil {
		return nil, err
	}

	req := service.ApplyPaymentRequest{
		BillID:     *billID,
		Amount:     amount.d,
		Method:     domain.PaymentMethod(strings.ToUpper(*method)),
		ReceivedBy: *receivedBy,
	}
	if *reference != "" {
		req.Reference = reference
	}
	payment, bill, err := a.Payments.ApplyPayment(ctx, req)
	if err != nil {
		return nil, err
	}
	return paymentResult{Payment: payment, Bill: bill}, nil
}

func refund(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("refund")
	paymentID := fs.Int64("payment", 0, "payment id")
	processedBy := fs.String("by", "", "who processed the refund")
	reason := fs.String("reason", "", "refund reason")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := requireID("payment", *paymentID); err != nil {
		return nil, err
	}

	payment, bill, err := a.Payments.RefundPayment(ctx, service.RefundPaymentRequest{
		PaymentID:   *paymentID,
		ProcessedBy: *processedBy,
		Reason:      *reason,
	})
	if err != nil {
		return nil, err
	}
	return paymentResult{Payment: payment, Bill: bill}, nil
}

func lateFee(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("late-fee")
	billID := fs.Int64("bill", 0, "bill id")
	apply := fs.Bool("apply", false, "persist the fee instead of previewing it")
	var asOf dateFlag
	fs.Var(&asOf, "as-of", "evaluation date (YYYY-MM-DD, default today)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := requireID("bill", *billID); err != nil {
		return nil, err
	}

	if !*apply {
		fee, err := a.Billing.PreviewLateFee(ctx, *billID, asOf.t)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bill_id": *billID, "late_fee": fee}, nil
	}

	bill, changed, err := a.Billing.ApplyLateFee(ctx, *billID, asOf.t)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bill": bill, "changed": changed}, nil
}

func sweep(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("sweep")
	var asOf dateFlag
	fs.Var(&asOf, "as-of", "evaluation date (YYYY-MM-DD, default today)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return a.Sweeper.Sweep(ctx, asOf.t)
}

func show(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := newFlagSet("show")
	billID := fs.Int64("bill", 0, "bill id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := requireID("bill", *billID); err != nil {
		return nil, err
	}

	bill, err := a.Billing.GetBill(ctx, *billID)
	if err != nil {
		return nil, err
	}
	payments, err := a.Billing.ListPayments(ctx, *billID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bill": bill, "payments": payments}, nil
}
