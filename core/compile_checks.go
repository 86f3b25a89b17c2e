package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ SessionCodec     = JSONSessionCodec{}
	_ AccountLocker    = (*MemoryAccountLocker)(nil)
	_ BackoffScheduler = ExponentialBackoffScheduler{}
	_ MetricsRecorder  = NopMetricsRecorder{}
	_ ConfigProvider   = (*CfgxConfigProvider)(nil)
	_ OptionsResolver  = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
