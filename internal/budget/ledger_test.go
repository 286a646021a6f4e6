package budget

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/llm"
)

func TestLedgerPersistsAggregatedUsage(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(LedgerConfig{DB: db})

	ledger.RecordGeneration("claude", "claude-sonnet-4-5", llm.TaskPost, llm.Usage{InputTokens: 100, OutputTokens: 40}, 0.01)
	ledger.RecordGeneration("claude", "claude-sonnet-4-5", llm.TaskPost, llm.Usage{InputTokens: 50, OutputTokens: 10}, 0.005)

	mock.ExpectExec("INSERT INTO autopilot_usage").WithArgs(
		"claude",
		"claude-sonnet-4-5",
		"post",
		2,
		150,
		50,
		0,
		0,
		0.015,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	ledger.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedgerRequeuesFailedFlush(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(LedgerConfig{DB: db})
	ledger.RecordGeneration("gemini", "gemini-2.5-flash", llm.TaskReply, llm.Usage{InputTokens: 10, OutputTokens: 5}, 0.001)

	mock.ExpectExec("INSERT INTO autopilot_usage").WillReturnError(sqlmock.ErrCancelled)

	ledger.Flush(context.Background())

	mock.ExpectExec("INSERT INTO autopilot_usage").WithArgs(
		"gemini",
		"gemini-2.5-flash",
		"reply",
		1,
		10,
		5,
		0,
		0,
		0.001,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	ledger.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLedgerFlushNoEntriesNoQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(LedgerConfig{DB: db})
	ledger.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
