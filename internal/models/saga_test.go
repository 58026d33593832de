package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSagaStateTerminal(t *testing.T) {
	terminal := []SagaState{SagaCompleted, SagaFailed, SagaValidationFailed, SagaDepositTimeout}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	inflight := []SagaState{
		SagaInitiated, SagaValidating, SagaBuyPending, SagaBuyDone,
		SagaWithdrawPending, SagaWithdrawDone, SagaMonitorDeposit,
		SagaDepositConfirmed, SagaSellPending, SagaSellDone,
	}
	for _, s := range inflight {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestValidationReportFailedCheck(t *testing.T) {
	report := &ValidationReport{
		Passed: false,
		Checks: []CheckResult{
			{Name: "balance_sufficiency", Passed: true},
			{Name: "destination_tag", Passed: false, FundLossRisk: true},
		},
	}

	failing := report.FailedCheck()
	assert.NotNil(t, failing)
	assert.Equal(t, "destination_tag", failing.Name)
	assert.True(t, failing.FundLossRisk)

	passed := &ValidationReport{Passed: true, Checks: []CheckResult{{Name: "x", Passed: true}}}
	assert.Nil(t, passed.FailedCheck())
}

func TestArbitragePathPairs(t *testing.T) {
	path := ArbitragePath{
		SourceVenue: "binance",
		DestVenue:   "kraken",
		SourceAsset: "USDT",
		DestAsset:   "EUR",
		BridgeAsset: "XRP",
	}

	assert.Equal(t, "XRP/USDT", path.SourcePair())
	assert.Equal(t, "XRP/EUR", path.DestPair())
	assert.Contains(t, path.Describe(), "binance:USDT")
	assert.Contains(t, path.Describe(), "kraken:EUR")
}

func TestScanResultBest(t *testing.T) {
	var empty *ScanResult
	assert.Nil(t, empty.Best())
	assert.Nil(t, (&ScanResult{}).Best())

	result := &ScanResult{Estimates: []PathProfitEstimate{{Viable: true}}}
	assert.NotNil(t, result.Best())
}
