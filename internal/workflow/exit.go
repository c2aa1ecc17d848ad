package workflow

import "github.com/deixis/aptest/internal/report"

// Process exit codes returned by aptest.
const (
	ExitOK               = 0
	ExitBuildFailed      = 1
	ExitUsage            = 2
	ExitTestsFailed      = 3
	ExitSpawnFailed      = 4
	ExitReadinessTimeout = 5
	ExitConfig           = 6
	ExitCancelled        = 130
)

// ExitCode maps a run failure to the process exit code.
func ExitCode(f report.Failure) int {
	switch f {
	case report.FailureNone:
		return ExitOK
	case report.FailureStep:
		return ExitBuildFailed
	case report.FailureTests:
		return ExitTestsFailed
	case report.FailureSpawn, report.FailureSessionStart:
		return ExitSpawnFailed
	case report.FailureReadiness:
		return ExitReadinessTimeout
	case report.FailureCancelled:
		return ExitCancelled
	default:
		return ExitConfig
	}
}
