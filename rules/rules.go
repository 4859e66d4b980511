//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the Add/Done goroutine pattern that wg.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Consider using $wg.Go() which calls Add(1) automatically")
}

// TimeDateTimeConstants flags layout literals that have named constants.
func TimeDateTimeConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report("Use time.DateTime instead of the literal layout").
		Suggest("$t.Format(time.DateTime)")

	m.Match(`$t.Format("2006-01-02")`).
		Report("Use time.DateOnly instead of the literal layout").
		Suggest("$t.Format(time.DateOnly)")
}

// EnhancedErrors keeps error construction in internal packages on the
// project's errors builder so categories reach HTTP status mapping and telemetry.
func EnhancedErrors(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().PkgPath.Matches(`/internal/errors$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("Use errors.Newf($msg).Component(...).Category(...).Build() from internal/errors")
}

// LoggerFields flags formatted log messages; pass values as typed fields.
func LoggerFields(m dsl.Matcher) {
	m.Match(`$log.$method(fmt.Sprintf($*_), $*_)`).
		Where(m["log"].Type.Implements("github.com/DeGirum/face-recognition/internal/logger.Logger") &&
			m["method"].Text.Matches(`^(Debug|Info|Warn|Error)$`)).
		Report("Use a constant message with logger fields instead of fmt.Sprintf")
}

// EchoHandlerErrors routes handler failures through the JSON error envelope.
func EchoHandlerErrors(m dsl.Matcher) {
	m.Match(`return $c.JSON($code, $err.Error())`).
		Where(m["c"].Type.Is("echo.Context") && m["err"].Type.Implements("error")).
		Report("Use s.HandleError(c, err, message) so the response carries a correlation id")
}
