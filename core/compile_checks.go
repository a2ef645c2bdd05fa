package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ PaymentEngine = (*Service)(nil)
	_ SweepLocker   = (*MemorySweepLocker)(nil)
	_ error         = (*CoordinationError)(nil)
	_ error         = (*TransientError)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
