package config

// Reference pacing values. The worker poll, distributor cadence, and
// broadcast interval mirror the behavior the upload flow was tuned against;
// change them only with care.
const (
	DefaultMaxWorkers      = 4
	DefaultSetupAttempts   = 5
	DefaultPollTimeoutMS   = 2000
	DefaultQueueSoftCap    = 20
	DefaultCadenceMS       = 100
	DefaultIdleWaitMS      = 500
	DefaultTokenTTLSeconds = 115
	DefaultBroadcastMS     = 300
	DefaultMaxInflight     = 20
	DefaultMaxUploadTime   = 60
	DefaultRequestTimeout  = 90
	DefaultAPIBind         = "127.0.0.1:18040"
	DefaultManifestFile    = "0manifest.yaml"
	DefaultChain           = "MATIC"
	DefaultEmulateDelayMS  = 750
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: "~/.local/share/shuttle",
			LogDir:   "~/.local/share/shuttle/logs",
		},
		API: API{
			Bind: DefaultAPIBind,
		},
		Collection: Collection{
			ManifestFile:    DefaultManifestFile,
			SingleAssetName: "Asset",
			Chain:           DefaultChain,
			UseAbsolutePath: true,
			MaxUploadTime:   DefaultMaxUploadTime,
		},
		Uploader: Uploader{
			RequestTimeout: DefaultRequestTimeout,
			Emulate:        true,
			EmulateDelayMS: DefaultEmulateDelayMS,
		},
		Workers: Workers{
			Max:           DefaultMaxWorkers,
			Initial:       1,
			SetupAttempts: DefaultSetupAttempts,
			PollTimeoutMS: DefaultPollTimeoutMS,
		},
		Distributor: Distributor{
			QueueSoftCap: DefaultQueueSoftCap,
			CadenceMS:    DefaultCadenceMS,
			IdleWaitMS:   DefaultIdleWaitMS,
		},
		Token: Token{
			TTLSeconds: DefaultTokenTTLSeconds,
			CanExpire:  true,
		},
		Broadcast: Broadcast{
			IntervalMS:  DefaultBroadcastMS,
			MaxInflight: DefaultMaxInflight,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
