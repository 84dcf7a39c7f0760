package framework

// TestLogger is told about each test as Run reaches it.
//
// A test excluded by the filter gets TestStarted and then TestSkipped. A test that skips itself
// gets the same pair. Only tests that actually ran get TestFinished.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput CapturedOutput)
	TestSkipped(id TestID, reason string)
}

// TestLoggerFuncs is a TestLogger built from functions. A nil field ignores that event, so the
// zero value discards everything.
type TestLoggerFuncs struct {
	Started  func(id TestID)
	Error    func(id TestID, err error)
	Finished func(id TestID, failed bool, debugOutput CapturedOutput)
	Skipped  func(id TestID, reason string)
}

func (f TestLoggerFuncs) TestStarted(id TestID) {
	if f.Started != nil {
		f.Started(id)
	}
}

func (f TestLoggerFuncs) TestError(id TestID, err error) {
	if f.Error != nil {
		f.Error(id, err)
	}
}

func (f TestLoggerFuncs) TestFinished(id TestID, failed bool, debugOutput CapturedOutput) {
	if f.Finished != nil {
		f.Finished(id, failed, debugOutput)
	}
}

func (f TestLoggerFuncs) TestSkipped(id TestID, reason string) {
	if f.Skipped != nil {
		f.Skipped(id, reason)
	}
}
