package interfaces

import "time"

type EodSummarizer interface {
	SummarizeDay(day time.Time) (csvPath string, err error)
	ShouldRunNow(now time.Time) (shouldRun bool, csvPath string)
}
