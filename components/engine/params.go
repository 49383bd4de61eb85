package engine

import (
	"github.com/iotaledger/hive.go/app"
)

type ParametersEngine struct {
	Enabled              bool    `default:"true" usage:"whether the privacy engine is enabled"`
	PrivacyLevel         string  `default:"standard" usage:"default routing privacy level (low, standard, high, maximum)"`
	DataDir              string  `default:"veilcore_data" usage:"directory for persistent data (master secret, audit reports)"`
	CodecSalt            string  `default:"veilcore-codec" usage:"deployment salt for the proof codec key"`
	AuditLogPath         string  `default:"" usage:"path for the JSON audit report, empty disables flushing"`
	SubmissionsPerSecond float64 `default:"10" usage:"rate cap for real segment submissions"`
}

var ParamsEngine = &ParametersEngine{}

var params = &app.ComponentParams{
	Params: map[string]any{
		"engine": ParamsEngine,
	},
	Masked: []string{},
}
