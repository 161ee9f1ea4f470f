package events

// Kind names an event raised by the audio engine
type Kind string

const (
	KindRecordingProgress Kind = "recordingProgress"
	KindAudioPeakPower    Kind = "audioPeakPower"
	KindRecordingFinished Kind = "recordingFinished"
	KindRecordingError    Kind = "recordingError"
	KindPlayerFinished    Kind = "playerFinished"
)

// Completion statuses carried by Finished and PlayerFinished
const (
	StatusOK      = "OK"
	StatusError   = "ERROR"
	StatusStopped = "STOPPED"
)

// Failure codes used by this module when it raises recordingError itself
const (
	CodeNativeCommandFailure = "native_command_failure"
	CodeProcessExit          = "process_exit"
)

// RecordingKinds are the kinds a recording session subscribes to
var RecordingKinds = []Kind{
	KindRecordingProgress,
	KindAudioPeakPower,
	KindRecordingFinished,
	KindRecordingError,
}

// AllKinds returns every kind known to the bus
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(RecordingKinds)+1)
	kinds = append(kinds, RecordingKinds...)
	return append(kinds, KindPlayerFinished)
}

// IsTerminal reports whether the kind ends a recording session
func (k Kind) IsTerminal() bool {
	return k == KindRecordingFinished || k == KindRecordingError
}

// Progress is the payload of recordingProgress
type Progress struct {
	CurrentTime     float64  `mapstructure:"currentTime" json:"currentTime" validate:"gte=0"`
	CurrentMetering *float64 `mapstructure:"currentMetering" json:"currentMetering,omitempty"`
}

// PeakPower is the payload of audioPeakPower, in dBFS
type PeakPower struct {
	Value float64 `mapstructure:"value" json:"value" validate:"lte=0"`
}

// Finished is the payload of recordingFinished
type Finished struct {
	Status string `mapstructure:"status" json:"status" validate:"required,oneof=OK ERROR"`
	Path   string `mapstructure:"path" json:"path"`
}

// Failure is the payload of recordingError
type Failure struct {
	Message string `mapstructure:"message" json:"message" validate:"required"`
	Code    string `mapstructure:"code" json:"code,omitempty"`
}

// PlayerFinished is the payload of playerFinished
type PlayerFinished struct {
	Token   int64  `mapstructure:"token" json:"token" validate:"gte=1"`
	Status  string `mapstructure:"status" json:"status" validate:"required,oneof=OK ERROR STOPPED"`
	Message string `mapstructure:"message" json:"message,omitempty"`
}
