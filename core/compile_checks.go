package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry          = (*ProviderRegistry)(nil)
	_ PaymentService    = (*Service)(nil)
	_ LedgerStore       = (*MemoryLedgerStore)(nil)
	_ UserProfileReader = (*MemoryLedgerStore)(nil)
	_ SweepLocker       = (*MemorySweepLocker)(nil)
	_ JobWorkerHook     = (*LoggingJobHook)(nil)
	_ Notifier          = NotifierFunc(nil)
	_ SweepPolicy       = SweepPolicyFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
