package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  host: db.local
  user: billing
  database: utilbill
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "read_committed", cfg.Database.Isolation)
	assert.Equal(t, 10, cfg.Database.TxTimeoutSeconds)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Equal(t, 30, cfg.Billing.DefaultDueDays)
	assert.Equal(t, "BILL", cfg.Billing.BillNumberPrefix)
	assert.Equal(t, "PAY", cfg.Billing.PaymentNumberPrefix)
	assert.Equal(t, []string{"ACTUAL"}, cfg.Billing.BillableReadingTypes)
	assert.Equal(t, "percentage", cfg.Billing.LateFee.Strategy)
	assert.Equal(t, "2", cfg.Billing.LateFee.Percentage)
	assert.Equal(t, "500", cfg.Billing.LateFee.MaxAmount)

	assert.Equal(t, "0 0 1 * * *", cfg.Scheduler.MarkOverdueBills)
	assert.Equal(t, "0 0 0 * * *", cfg.Scheduler.GeneratePendingBills)
	assert.Equal(t, ":9102", cfg.Metrics.Address)
	assert.Equal(t, "all", cfg.Events.RequiredAcks)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing host",
			yaml:    "database:\n  user: u\n  database: d\n",
			wantErr: "database host is required",
		},
		{
			name:    "bad isolation",
			yaml:    minimalYAML + "  isolation: chaos\n",
			wantErr: "invalid database isolation",
		},
		{
			name:    "unknown late fee strategy",
			yaml:    minimalYAML + "billing:\n  late_fee:\n    strategy: compound\n",
			wantErr: "invalid late fee strategy",
		},
		{
			name:    "flat strategy without amount",
			yaml:    minimalYAML + "billing:\n  late_fee:\n    strategy: flat\n",
			wantErr: "requires an amount",
		},
		{
			name:    "malformed amount",
			yaml:    minimalYAML + "billing:\n  late_fee:\n    strategy: daily\n    daily_amount: ten\n",
			wantErr: "invalid late fee daily_amount",
		},
		{
			name:    "bad reading type",
			yaml:    minimalYAML + "billing:\n  billable_reading_types: [GUESSED]\n",
			wantErr: "invalid billable reading type",
		},
		{
			name:    "events without brokers",
			yaml:    minimalYAML + "events:\n  enabled: true\n  topic: t\n",
			wantErr: "kafka brokers must be specified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	t.Setenv("DB_HOST", "override.local")
	t.Setenv("BILLING_DEFAULT_DUE_DAYS", "14")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.local", cfg.Database.Host)
	assert.Equal(t, 14, cfg.Billing.DefaultDueDays)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "postgres://billing:@override.local:5432/utilbill?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
