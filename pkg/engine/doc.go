// Package engine fetches one batch of identifiers at bounded concurrency.
//
// Every identifier of a batch is submitted at once; a counting Gate admits at
// most Concurrency fetches at a time. Completions are consumed in the order
// they finish, so the record order of a batch is not stable across runs.
//
// Example usage:
//
//	eng := engine.New(apiClient, errorLog, engine.DefaultConfig())
//	res, err := eng.Run(ctx, batch)
//	if err != nil {
//		// ctx was cancelled; res holds whatever finished
//	}
//	writer.Write(batch.Index, res.Records)
//
// Per-identifier failures never surface as errors. Each non-success outcome is
// handed to the FailureReporter; a reporter error is logged and dropped.
package engine
